package datastore

import (
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// SeedConfig controls the size of the generated demo dataset.
type SeedConfig struct {
	Customers int
	Orders    int
	Seed      int64
}

// DefaultSeedConfig mirrors the demo dataset sizes.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Customers: 200, Orders: 1000, Seed: 7}
}

var prefectures = []string{
	"東京都", "大阪府", "北海道", "福岡県", "愛知県", "京都府", "神奈川県", "広島県",
}

var familyNames = []string{
	"佐藤", "鈴木", "高橋", "田中", "伊藤", "渡辺", "山本", "中村",
}

var givenNames = []string{
	"太郎", "花子", "一郎", "美咲", "健太", "さくら", "大輔", "由美",
}

type demoProduct struct {
	name     string
	category string
	price    int
}

var demoProducts = []demoProduct{
	{"ノートパソコン", "電化製品", 89800},
	{"スマートフォン", "電化製品", 78900},
	{"ワイヤレスイヤホン", "電化製品", 12800},
	{"モニター", "電化製品", 28900},
	{"技術書", "書籍", 3980},
	{"小説", "書籍", 1650},
	{"漫画", "書籍", 550},
	{"料理本", "書籍", 1780},
	{"プレミアムコーヒー", "食品・飲料", 1580},
	{"オリーブオイル", "食品・飲料", 1280},
	{"緑茶", "食品・飲料", 980},
	{"ナッツミックス", "食品・飲料", 980},
}

const demoSchema = `
DROP TABLE IF EXISTS customers;
DROP TABLE IF EXISTS products;
DROP TABLE IF EXISTS orders;

CREATE TABLE customers (
	customer_id INTEGER PRIMARY KEY,
	customer_name TEXT NOT NULL,
	prefecture TEXT NOT NULL,
	registration_date TEXT NOT NULL
);

CREATE TABLE products (
	product_id INTEGER PRIMARY KEY,
	product_name TEXT NOT NULL,
	category TEXT NOT NULL,
	price INTEGER NOT NULL,
	stock_quantity INTEGER NOT NULL
);

CREATE TABLE orders (
	order_id INTEGER PRIMARY KEY,
	customer_name TEXT NOT NULL,
	product_id INTEGER NOT NULL,
	quantity INTEGER NOT NULL,
	order_date TEXT NOT NULL,
	total_amount INTEGER NOT NULL
);
`

// SeedDemo fills db with the e-commerce demo dataset: customers,
// products, and orders with realistic Japanese names. The generator is
// deterministic for a given seed.
func SeedDemo(db *sql.DB, cfg SeedConfig) error {
	if cfg.Customers <= 0 || cfg.Orders <= 0 {
		return fmt.Errorf("seed sizes must be positive")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	if _, err := db.Exec(demoSchema); err != nil {
		return fmt.Errorf("failed to create demo schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	names := make([]string, cfg.Customers)
	regBase := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.Customers; i++ {
		names[i] = familyNames[rng.Intn(len(familyNames))] + " " + givenNames[rng.Intn(len(givenNames))]
		_, err := tx.Exec(
			"INSERT INTO customers (customer_id, customer_name, prefecture, registration_date) VALUES (?, ?, ?, ?)",
			i+1, names[i], prefectures[rng.Intn(len(prefectures))],
			regBase.AddDate(0, 0, rng.Intn(730)).Format("2006-01-02"),
		)
		if err != nil {
			return fmt.Errorf("failed to insert customer: %w", err)
		}
	}

	for i, p := range demoProducts {
		_, err := tx.Exec(
			"INSERT INTO products (product_id, product_name, category, price, stock_quantity) VALUES (?, ?, ?, ?, ?)",
			i+1, p.name, p.category, p.price, 5+rng.Intn(96),
		)
		if err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}
	}

	orderBase := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.Orders; i++ {
		idx := rng.Intn(len(demoProducts))
		product := demoProducts[idx]
		productID := idx + 1
		quantity := 1 + rng.Intn(5)
		_, err := tx.Exec(
			"INSERT INTO orders (order_id, customer_name, product_id, quantity, order_date, total_amount) VALUES (?, ?, ?, ?, ?, ?)",
			i+1, names[rng.Intn(len(names))], productID, quantity,
			orderBase.AddDate(0, 0, rng.Intn(304)).Format("2006-01-02"),
			product.price*quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().
		Int("customers", cfg.Customers).
		Int("products", len(demoProducts)).
		Int("orders", cfg.Orders).
		Msg("Demo dataset seeded")

	return nil
}

// CreateDemo creates (or recreates) the demo database file at path.
func CreateDemo(path string, cfg SeedConfig) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return SeedDemo(db, cfg)
}
