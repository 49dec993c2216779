package postgres

// Migrations returns the embedded schema steps in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_enrollments", UpSQL: migration001Up},
		{Version: 2, Name: "create_completion_records", UpSQL: migration002Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS enrollments (
    seq BIGSERIAL UNIQUE,
    id VARCHAR(36) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    contact VARCHAR(320) NOT NULL,
    program_id VARCHAR(100) NOT NULL,
    payment VARCHAR(16) NOT NULL DEFAULT 'pending',
    enrolled_at TIMESTAMPTZ NOT NULL,
    duration_units INTEGER NOT NULL,
    total_stages INTEGER NOT NULL,
    total_units INTEGER NOT NULL,
    confirmation_sent BOOLEAN NOT NULL DEFAULT FALSE,
    details_sent BOOLEAN NOT NULL DEFAULT FALSE,
    offer_letter_sent BOOLEAN NOT NULL DEFAULT FALSE,
    completion_sent BOOLEAN NOT NULL DEFAULT FALSE,
    stage_counter INTEGER NOT NULL DEFAULT 1,
    last_stage_sent_at TIMESTAMPTZ,
    progress INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT enrollments_identity UNIQUE (contact, program_id),
    CONSTRAINT enrollments_payment_check CHECK (payment IN ('pending', 'paid', 'failed')),
    CONSTRAINT enrollments_duration_check CHECK (duration_units > 0),
    CONSTRAINT enrollments_stages_check CHECK (total_stages >= 0),
    CONSTRAINT enrollments_units_check CHECK (total_units > 0),
    CONSTRAINT enrollments_stage_counter_check CHECK (stage_counter BETWEEN 1 AND total_stages + 1),
    CONSTRAINT enrollments_progress_check CHECK (progress BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_paid ON enrollments(payment) WHERE payment = 'paid';
CREATE INDEX IF NOT EXISTS idx_enrollments_created_at ON enrollments(created_at);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: COMPLETION RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS completion_records (
    enrollment_id VARCHAR(36) NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    unit_id VARCHAR(100) NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,

    PRIMARY KEY (enrollment_id, unit_id)
);
`
