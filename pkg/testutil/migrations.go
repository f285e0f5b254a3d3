package testutil

import "fmt"

// stockTables lists one table per warehouse kind
var stockTables = []string{
	"central_stock",
	"primary_stock",
	"pharmacy_stock",
	"parallel_stock",
	"support_services_stock",
	"attention_services_stock",
	"aus_stock",
}

// StockMigrations returns the stock engine schema for tests
func StockMigrations() []string {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS hospitals (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			classification TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id BIGSERIAL PRIMARY KEY,
			hospital_id BIGINT NOT NULL REFERENCES hospitals(id),
			name TEXT NOT NULL,
			warehouse_kind TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			CONSTRAINT sites_warehouse_kind_valid CHECK (warehouse_kind IN
				('central', 'primary', 'pharmacy', 'parallel', 'support_services', 'attention_services', 'aus'))
		)`,
		`CREATE TABLE IF NOT EXISTS supplies (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lots (
			id BIGSERIAL PRIMARY KEY,
			supply_id BIGINT NOT NULL REFERENCES supplies(id),
			batch_number TEXT NOT NULL,
			hospital_id BIGINT NOT NULL REFERENCES hospitals(id),
			expiry_date DATE,
			intake_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT lots_supply_batch UNIQUE (supply_id, batch_number, hospital_id)
		)`,
	}

	for _, table := range stockTables {
		migrations = append(migrations, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			lot_id BIGINT NOT NULL REFERENCES lots(id),
			site_id BIGINT NOT NULL REFERENCES sites(id),
			hospital_id BIGINT NOT NULL REFERENCES hospitals(id),
			quantity INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT %[1]s_quantity_non_negative CHECK (quantity >= 0),
			CONSTRAINT %[1]s_row UNIQUE (lot_id, site_id, hospital_id)
		)`, table))
	}

	return append(migrations,
		`CREATE TABLE IF NOT EXISTS lot_groups (
			code TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT lot_groups_seq_key UNIQUE (seq)
		)`,
		`CREATE TABLE IF NOT EXISTS lot_group_items (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL REFERENCES lot_groups(code),
			lot_id BIGINT NOT NULL REFERENCES lots(id),
			outbound_quantity INTEGER NOT NULL DEFAULT 0,
			inbound_quantity INTEGER NOT NULL DEFAULT 0,
			discrepancy BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'active',
			state TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lot_group_items_code ON lot_group_items(code)`,
		`CREATE TABLE IF NOT EXISTS movements (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			origin_hospital_id BIGINT REFERENCES hospitals(id),
			origin_site_id BIGINT REFERENCES sites(id),
			origin_warehouse_kind TEXT,
			destination_hospital_id BIGINT REFERENCES hospitals(id),
			destination_site_id BIGINT REFERENCES sites(id),
			destination_warehouse_kind TEXT,
			outbound_quantity_total INTEGER NOT NULL DEFAULT 0,
			inbound_quantity_total INTEGER NOT NULL DEFAULT 0,
			discrepancy_total BOOLEAN NOT NULL DEFAULT FALSE,
			group_code TEXT NOT NULL REFERENCES lot_groups(code),
			state TEXT NOT NULL DEFAULT 'pending',
			dispatched_at TIMESTAMPTZ,
			received_at TIMESTAMPTZ,
			notes TEXT NOT NULL DEFAULT '',
			user_id BIGINT NOT NULL,
			receiver_user_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movements_kind_valid CHECK (kind IN ('entry', 'exit', 'transfer')),
			CONSTRAINT movements_state_valid CHECK (state IN
				('pending', 'dispatched', 'en_route', 'delivered', 'received', 'cancelled'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_state ON movements(state)`,
		`CREATE TABLE IF NOT EXISTS movement_discrepancies (
			id BIGSERIAL PRIMARY KEY,
			movement_id BIGINT NOT NULL REFERENCES movements(id),
			group_code TEXT NOT NULL,
			lot_id BIGINT NOT NULL REFERENCES lots(id),
			expected_quantity INTEGER NOT NULL,
			received_quantity INTEGER NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS movement_tracking (
			id BIGSERIAL PRIMARY KEY,
			movement_id BIGINT NOT NULL REFERENCES movements(id),
			state TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			address TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			courier_user_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS hospital_type_percentages (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			class1 NUMERIC(5,2) NOT NULL DEFAULT 0,
			class2 NUMERIC(5,2) NOT NULL DEFAULT 0,
			class3 NUMERIC(5,2) NOT NULL DEFAULT 0,
			class4 NUMERIC(5,2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	)
}
