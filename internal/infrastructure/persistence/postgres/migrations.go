package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// The schema mirrors the domain invariants: append-only tables get unique
// indexes for idempotency keys, progress tables get composite primary keys,
// and the ledger carries the (user_id, reason, source_id) uniqueness that
// makes credits and debits idempotent.
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_subjects_and_entries",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_achievements",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_challenges",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
		{
			Version: 4,
			Name:    "create_rewards",
			UpSQL:   migration004Up,
			DownSQL: migration004Down,
		},
		{
			Version: 5,
			Name:    "seed_default_catalog",
			UpSQL:   migration005Up,
			DownSQL: migration005Down,
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Migration 1: subjects and the append-only entry log
// ─────────────────────────────────────────────────────────────────────────────

const migration001Up = `
CREATE TABLE IF NOT EXISTS subjects (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    name        TEXT NOT NULL,
    species     TEXT NOT NULL,
    timezone    TEXT NOT NULL DEFAULT 'UTC',
    created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subjects_owner ON subjects(owner_id);

CREATE TABLE IF NOT EXISTS entries (
    id              TEXT PRIMARY KEY,
    subject_id      TEXT NOT NULL REFERENCES subjects(id),
    occurred_at     TIMESTAMP WITH TIME ZONE NOT NULL,
    consistency     TEXT NOT NULL,
    color           TEXT NOT NULL,
    location        TEXT NOT NULL DEFAULT '',
    notes           TEXT NOT NULL DEFAULT '',
    idempotency_key TEXT NOT NULL,
    created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Retried submissions must map to the original entry.
CREATE UNIQUE INDEX IF NOT EXISTS uq_entries_idempotency
    ON entries(subject_id, idempotency_key);

CREATE INDEX IF NOT EXISTS idx_entries_subject_occurred
    ON entries(subject_id, occurred_at);
`

const migration001Down = `
DROP TABLE IF EXISTS entries;
DROP TABLE IF EXISTS subjects;
`

// ─────────────────────────────────────────────────────────────────────────────
// Migration 2: achievement catalog and per-user progress
// ─────────────────────────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    description         TEXT NOT NULL DEFAULT '',
    type                TEXT NOT NULL,
    is_negative         BOOLEAN NOT NULL DEFAULT FALSE,
    penalty_points      INTEGER NOT NULL DEFAULT 0,
    max_progress        INTEGER NOT NULL DEFAULT 0,
    condition_kind      TEXT NOT NULL,
    condition_attribute TEXT NOT NULL DEFAULT '',
    condition_match     TEXT NOT NULL DEFAULT '',
    trigger_value       INTEGER NOT NULL,
    coin_reward         INTEGER NOT NULL DEFAULT 0,
    xp_bonus            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id             TEXT NOT NULL,
    achievement_id      TEXT NOT NULL REFERENCES achievement_definitions(id),
    progress            INTEGER NOT NULL DEFAULT 0,
    unlocked            BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at         TIMESTAMP WITH TIME ZONE,
    last_penalty_window TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, achievement_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievement_definitions;
`

// ─────────────────────────────────────────────────────────────────────────────
// Migration 3: challenge catalog and per-user progress
// ─────────────────────────────────────────────────────────────────────────────

const migration003Up = `
CREATE TABLE IF NOT EXISTS challenge_definitions (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    start_date          DATE NOT NULL,
    end_date            DATE NOT NULL,
    type                TEXT NOT NULL,
    condition_kind      TEXT NOT NULL,
    condition_attribute TEXT NOT NULL DEFAULT '',
    condition_match     TEXT NOT NULL DEFAULT '',
    condition_value     INTEGER NOT NULL,
    points              INTEGER NOT NULL,
    CHECK (end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_challenge_definitions_window
    ON challenge_definitions(start_date, end_date);

CREATE TABLE IF NOT EXISTS user_challenges (
    user_id      TEXT NOT NULL,
    challenge_id TEXT NOT NULL REFERENCES challenge_definitions(id),
    progress     INTEGER NOT NULL DEFAULT 0,
    completed    BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, challenge_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_challenges;
DROP TABLE IF EXISTS challenge_definitions;
`

// ─────────────────────────────────────────────────────────────────────────────
// Migration 4: rewards state and the append-only coin ledger
// ─────────────────────────────────────────────────────────────────────────────

const migration004Up = `
CREATE TABLE IF NOT EXISTS rewards_states (
    user_id        TEXT PRIMARY KEY,
    coin_balance   INTEGER NOT NULL DEFAULT 0 CHECK (coin_balance >= 0),
    level          INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
    experience     INTEGER NOT NULL DEFAULT 0 CHECK (experience >= 0),
    next_level_exp INTEGER NOT NULL,
    updated_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    amount     INTEGER NOT NULL CHECK (amount <> 0),
    reason     TEXT NOT NULL,
    source_id  TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- One ledger entry per fact: the idempotency triple.
CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_idempotency
    ON ledger_entries(user_id, reason, source_id);

CREATE INDEX IF NOT EXISTS idx_ledger_user_created
    ON ledger_entries(user_id, created_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS ledger_entries;
DROP TABLE IF EXISTS rewards_states;
`

// ─────────────────────────────────────────────────────────────────────────────
// Migration 5: default achievement catalog
// ─────────────────────────────────────────────────────────────────────────────

const migration005Up = `
INSERT INTO achievement_definitions
    (id, title, description, type, is_negative, penalty_points, max_progress,
     condition_kind, condition_attribute, condition_match, trigger_value,
     coin_reward, xp_bonus)
VALUES
    ('first-log', 'Первая запись', 'Добавь первую запись в журнал',
     'milestone', FALSE, 0, 1, 'TOTAL_COUNT', '', '', 1, 10, 20),
    ('ten-logs', 'Десятка', 'Десять записей в журнале',
     'milestone', FALSE, 0, 10, 'TOTAL_COUNT', '', '', 10, 25, 50),
    ('hundred-logs', 'Летописец', 'Сто записей в журнале',
     'milestone', FALSE, 0, 100, 'TOTAL_COUNT', '', '', 100, 100, 200),
    ('streak-7', 'Неделя подряд', 'Семь дней подряд с записями',
     'streak', FALSE, 0, 7, 'STREAK_AT_LEAST', '', '', 7, 50, 100),
    ('streak-30', 'Железная дисциплина', 'Тридцать дней подряд с записями',
     'streak', FALSE, 0, 30, 'STREAK_AT_LEAST', '', '', 30, 200, 400),
    ('healthy-10', 'Здоровый ритм', 'Десять записей с нормальной консистенцией',
     'attribute', FALSE, 0, 10, 'SPECIFIC_ATTRIBUTE_COUNT', 'consistency', 'solid', 10, 30, 60),
    ('slacker-3', 'Прогульщик', 'Три дня подряд без записей',
     'absence', TRUE, 15, 3, 'ABSENCE', '', '', 3, 0, 0),
    ('ghost-7', 'Пропавший', 'Неделя без единой записи',
     'absence', TRUE, 40, 7, 'ABSENCE', '', '', 7, 0, 0)
ON CONFLICT (id) DO NOTHING;
`

const migration005Down = `
DELETE FROM achievement_definitions
WHERE id IN ('first-log', 'ten-logs', 'hundred-logs', 'streak-7', 'streak-30',
             'healthy-10', 'slacker-3', 'ghost-7');
`
