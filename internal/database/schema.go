package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL,
    language ENUM('en','am') NOT NULL DEFAULT 'en',
    credit_balance INT NOT NULL DEFAULT 0,
    total_generations INT NOT NULL DEFAULT 0,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    is_banned TINYINT(1) NOT NULL DEFAULT 0,
    joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_active TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS styles (
    id CHAR(36) PRIMARY KEY,
    name_en VARCHAR(255) NOT NULL,
    name_am VARCHAR(255),
    description_en TEXT,
    description_am TEXT,
    prompt_template TEXT NOT NULL,
    credit_cost INT NOT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    display_order INT NOT NULL DEFAULT 0,
    preview_image_url TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS generations (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    style_id CHAR(36),
    status ENUM('pending','processing','completed','failed','manual_queue') NOT NULL DEFAULT 'pending',
    original_photo_url TEXT,
    generated_photo_url TEXT,
    credits_spent INT NOT NULL DEFAULT 0,
    error_message TEXT,
    api_provider VARCHAR(32),
    processing_time_ms BIGINT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP NULL,
    KEY idx_generations_user_status (user_id, status),
    KEY idx_generations_status_created (status, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    FOREIGN KEY (style_id) REFERENCES styles(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS payments (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    package_type VARCHAR(64) NOT NULL,
    amount_birr INT NOT NULL,
    credits_amount INT NOT NULL,
    screenshot_url TEXT,
    ocr_extracted_data JSON,
    status ENUM('pending','approved','rejected') NOT NULL DEFAULT 'pending',
    admin_id BIGINT,
    admin_note TEXT,
    submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    reviewed_at TIMESTAMP NULL,
    KEY idx_payments_user_status (user_id, status),
    KEY idx_payments_status_submitted (status, submitted_at),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS credit_transactions (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount INT NOT NULL,
    transaction_type ENUM('bonus','purchase','generation','admin_adjustment') NOT NULL,
    reference_id CHAR(36),
    balance_after INT NOT NULL,
    note TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_credit_transactions_user (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);
`
