package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	strategy TEXT NOT NULL,
	created TEXT NOT NULL,
	initial_cash TEXT NOT NULL,
	final_equity TEXT,
	total_return TEXT,
	annualized_return TEXT,
	max_drawdown TEXT,
	trades INTEGER
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	day TEXT NOT NULL,
	equity TEXT NOT NULL,
	cash TEXT NOT NULL,
	PRIMARY KEY (run_id, day)
);

CREATE TABLE IF NOT EXISTS fills (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	seq INTEGER NOT NULL,
	day TEXT NOT NULL,
	code TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	notional TEXT NOT NULL,
	commission TEXT NOT NULL,
	transfer TEXT NOT NULL,
	stamp_duty TEXT NOT NULL,
	cash_after TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS positions (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	day TEXT NOT NULL,
	code TEXT NOT NULL,
	amount INTEGER NOT NULL,
	cost_basis TEXT NOT NULL,
	open TEXT NOT NULL,
	close TEXT NOT NULL,
	market_value TEXT NOT NULL,
	rank INTEGER NOT NULL,
	PRIMARY KEY (run_id, day, code)
);

CREATE INDEX IF NOT EXISTS idx_fills_day ON fills(run_id, day);
`
