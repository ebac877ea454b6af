package postgres

// migrations are applied in slice order by Client.RunMigrations.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "0001_orders.sql",
		sql: `
			CREATE TABLE IF NOT EXISTS orders (
				id            TEXT PRIMARY KEY,
				user_id       TEXT NOT NULL,
				reference_id  TEXT NOT NULL UNIQUE,
				symbol        TEXT NOT NULL,
				status        TEXT NOT NULL,
				price         DOUBLE PRECISION NOT NULL DEFAULT 0,
				amount        DOUBLE PRECISION NOT NULL DEFAULT 0,
				filled        DOUBLE PRECISION NOT NULL DEFAULT 0,
				remaining     DOUBLE PRECISION NOT NULL DEFAULT 0,
				cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
				fee           DOUBLE PRECISION NOT NULL DEFAULT 0,
				average       DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, status);
			CREATE INDEX IF NOT EXISTS idx_orders_status_updated ON orders (status, updated_at);`,
	},
	{
		name: "0002_wallets.sql",
		sql: `
			CREATE TABLE IF NOT EXISTS wallets (
				user_id     TEXT NOT NULL,
				currency    TEXT NOT NULL,
				wallet_type TEXT NOT NULL,
				balance     NUMERIC(32, 8) NOT NULL DEFAULT 0,
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (user_id, currency, wallet_type)
			);`,
	},
	{
		name: "0003_audit_log.sql",
		sql: `
			CREATE TABLE IF NOT EXISTS audit_log (
				id         UUID PRIMARY KEY,
				event      TEXT NOT NULL,
				detail     JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_audit_log_event ON audit_log (event, created_at DESC);`,
	},
}
