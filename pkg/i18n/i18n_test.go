package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", LocaleSpanish},
		{"en", LocaleEnglish},
		{"en-US,en;q=0.9", LocaleEnglish},
		{"es-CL,es;q=0.9,en;q=0.8", LocaleSpanish},
		{"de-DE,en;q=0.5", LocaleEnglish},
		{"fr", LocaleSpanish},
		{";;;", LocaleSpanish},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAcceptLanguage(tt.header))
		})
	}
}

func TestLocalizer_T(t *testing.T) {
	en := WithLocale(context.Background(), LocaleEnglish)

	assert.Equal(t, "Movement received", TFromContext(en, "movements.received"))
	assert.Equal(t, "lot not found", TFromContext(en, "errors.not_found", map[string]string{"resource": "lot"}))
	assert.Equal(t, "lot no encontrado", T("errors.not_found", map[string]string{"resource": "lot"}))
	assert.Equal(t, "movements.unknown", T("movements.unknown"))
	assert.Equal(t, LocaleSpanish, NewLocalizer("pt").GetLocale())
}
