package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    user_address VARCHAR(128) NOT NULL PRIMARY KEY,
    nickname VARCHAR(64) NOT NULL,
    avatar_url VARCHAR(512) NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`,

	`CREATE TABLE IF NOT EXISTS user_credits (
    user_address VARCHAR(128) NOT NULL PRIMARY KEY,
    credits INT NOT NULL DEFAULT 0,
    used_credits INT NOT NULL DEFAULT 0,
    plan VARCHAR(16) NOT NULL,
    expires_at DATETIME NULL,
    updated_at DATETIME NOT NULL,
    CHECK (credits >= 0)
)`,

	`CREATE TABLE IF NOT EXISTS credit_consumption (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_address VARCHAR(128) NOT NULL,
    amount INT NOT NULL,
    type VARCHAR(16) NOT NULL,
    report_id BIGINT NULL,
    created_at DATETIME NOT NULL,
    INDEX idx_consumption_user (user_address)
)`,

	`CREATE TABLE IF NOT EXISTS orders (
    order_no VARCHAR(64) NOT NULL PRIMARY KEY,
    created_at DATETIME NOT NULL,
    user_address VARCHAR(128) NOT NULL,
    amount DECIMAL(18, 6) NOT NULL,
    credits INT NOT NULL,
    network VARCHAR(32) NOT NULL,
    transaction_hash VARCHAR(128) NOT NULL DEFAULT '',
    order_status TINYINT NOT NULL DEFAULT 0,
    expired_at DATETIME NOT NULL,
    paid_at DATETIME NULL,
    plan VARCHAR(16) NOT NULL,
    token_address VARCHAR(128) NOT NULL,
    token_decimals INT NOT NULL,
    INDEX idx_orders_user_status (user_address, order_status)
)`,

	`CREATE TABLE IF NOT EXISTS pricing_plans (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    plan_type VARCHAR(16) NOT NULL,
    title VARCHAR(255) NOT NULL,
    description TEXT,
    price DECIMAL(18, 6) NOT NULL,
    credits INT NOT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,

	`CREATE TABLE IF NOT EXISTS reports (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    project_name VARCHAR(255) NOT NULL,
    summary TEXT NOT NULL,
    content JSON NOT NULL,
    image_url VARCHAR(1024) NOT NULL,
    user_address VARCHAR(128) NOT NULL,
    created_at DATETIME NOT NULL,
    INDEX idx_reports_created (created_at),
    INDEX idx_reports_project_user (project_name, user_address, created_at)
)`,

	`CREATE TABLE IF NOT EXISTS user_reports (
    user_address VARCHAR(128) NOT NULL,
    report_id BIGINT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (user_address, report_id),
    FOREIGN KEY (report_id) REFERENCES reports(id)
)`,

	`CREATE TABLE IF NOT EXISTS report_requests (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    project_name VARCHAR(255) NOT NULL,
    wallet_address VARCHAR(128) NOT NULL,
    request_id VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE KEY uniq_request_project_wallet (project_name, wallet_address),
    UNIQUE KEY uniq_request_id (request_id)
)`,
}
