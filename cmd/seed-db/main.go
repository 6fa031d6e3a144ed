package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
	Price       decimal.Decimal `json:"price"`
	DiscountPct decimal.Decimal `json:"discountPct"`
	Stock       int             `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDeliveryMethods(ctx, pool); err != nil {
		return errors.Wrap(err, "seed delivery methods")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedVouchers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}

	if err := seedLoyaltyAccounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed loyalty accounts")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, category, image_url, price, discount_pct, stock)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    category = EXCLUDED.category,
    image_url = EXCLUDED.image_url,
    price = EXCLUDED.price,
    discount_pct = EXCLUDED.discount_pct,
    stock = EXCLUDED.stock
`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Category, p.ImageURL, p.Price, p.DiscountPct, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertDeliveryMethodSQL = `
INSERT INTO delivery_methods (code, name, fee)
VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name,
    fee = EXCLUDED.fee
`

func seedDeliveryMethods(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding delivery methods")

	methods := []struct {
		code string
		name string
		fee  decimal.Decimal
	}{
		{code: "STANDARD", name: "Standard delivery (3-5 days)", fee: decimal.NewFromInt(20000)},
		{code: "EXPRESS", name: "Express delivery (1-2 days)", fee: decimal.NewFromInt(45000)},
		{code: "PICKUP", name: "Store pickup", fee: decimal.Zero},
	}

	for _, m := range methods {
		if _, err := pool.Exec(ctx, upsertDeliveryMethodSQL, m.code, m.name, m.fee); err != nil {
			return errors.Wrapf(err, "upsert delivery method %s", m.code)
		}

		slog.Info("upserted delivery method", slog.String("code", m.code))
	}

	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (
    code, discount_type, value, max_discount, min_order_value,
    starts_at, ends_at, active, public, usage_limit, user_usage_limit,
    include_products, exclude_products, include_categories, exclude_categories,
    description
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    value = EXCLUDED.value,
    max_discount = EXCLUDED.max_discount,
    min_order_value = EXCLUDED.min_order_value,
    starts_at = EXCLUDED.starts_at,
    ends_at = EXCLUDED.ends_at,
    active = EXCLUDED.active,
    public = EXCLUDED.public,
    usage_limit = EXCLUDED.usage_limit,
    user_usage_limit = EXCLUDED.user_usage_limit,
    include_products = EXCLUDED.include_products,
    exclude_products = EXCLUDED.exclude_products,
    include_categories = EXCLUDED.include_categories,
    exclude_categories = EXCLUDED.exclude_categories,
    description = EXCLUDED.description
`

type couponSeed struct {
	code           string
	discountType   string
	value          decimal.Decimal
	maxDiscount    decimal.Decimal
	minOrderValue  decimal.Decimal
	startsAt       *time.Time
	endsAt         *time.Time
	active         bool
	public         bool
	usageLimit     int
	userUsageLimit int
	includeCats    []string
	excludeCats    []string
	description    string
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding coupons")

	now := time.Now()
	monthEnd := now.AddDate(0, 1, 0)

	coupons := []couponSeed{
		{
			code:           "WELCOME10",
			discountType:   "percentage",
			value:          decimal.NewFromInt(10),
			maxDiscount:    decimal.NewFromInt(50000),
			active:         true,
			public:         true,
			userUsageLimit: 1,
			description:    "Welcome: 10% off, up to 50k",
		},
		{
			code:           "FREESHIP",
			discountType:   "fixed",
			value:          decimal.NewFromInt(20000),
			minOrderValue:  decimal.NewFromInt(150000),
			startsAt:       &now,
			endsAt:         &monthEnd,
			active:         true,
			public:         true,
			usageLimit:     1000,
			userUsageLimit: 3,
			description:    "20k off orders above 150k",
		},
		{
			code:         "LASTCALL5K",
			discountType: "fixed",
			value:        decimal.NewFromInt(5000),
			active:       true,
			public:       true,
			usageLimit:   1,
			description:  "Flash sale: 5k off, first order only",
		},
		{
			code:           "VIPONLY25",
			discountType:   "percentage",
			value:          decimal.NewFromInt(25),
			maxDiscount:    decimal.NewFromInt(200000),
			active:         true,
			public:         false,
			userUsageLimit: 1,
			excludeCats:    []string{"gift-card"},
			description:    "VIP members: 25% off",
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.discountType, c.value, c.maxDiscount, c.minOrderValue,
			c.startsAt, c.endsAt, c.active, c.public, c.usageLimit, c.userUsageLimit,
			[]string{}, []string{}, c.includeCats, c.excludeCats,
			c.description,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

const upsertVoucherSQL = `
INSERT INTO vouchers (code, discount_type, value, min_purchase, starts_at, ends_at, products, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    value = EXCLUDED.value,
    min_purchase = EXCLUDED.min_purchase,
    starts_at = EXCLUDED.starts_at,
    ends_at = EXCLUDED.ends_at,
    products = EXCLUDED.products,
    description = EXCLUDED.description
`

const insertGrantSQL = `
INSERT INTO voucher_grants (id, user_id, voucher_code)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, voucher_code) DO NOTHING
`

func seedVouchers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding vouchers")

	if _, err := pool.Exec(ctx, upsertVoucherSQL,
		"BDAY20K", "fixed", decimal.NewFromInt(20000), decimal.NewFromInt(100000),
		nil, nil, []string{}, "Birthday voucher: 20k off orders above 100k",
	); err != nil {
		return errors.Wrap(err, "upsert voucher BDAY20K")
	}

	for _, userID := range []string{"user-1", "user-2"} {
		if _, err := pool.Exec(ctx, insertGrantSQL, uuid.NewString(), userID, "BDAY20K"); err != nil {
			return errors.Wrapf(err, "grant voucher to %s", userID)
		}

		slog.Info("granted voucher", slog.String("user", userID), slog.String("code", "BDAY20K"))
	}

	return nil
}

const upsertLoyaltySQL = `
INSERT INTO loyalty_accounts (user_id, balance)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance
`

const insertLoyaltyEntrySQL = `
INSERT INTO loyalty_entries (id, user_id, delta, kind)
VALUES ($1, $2, $3, $4)
`

func seedLoyaltyAccounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding loyalty accounts")

	accounts := []struct {
		userID  string
		balance int64
	}{
		{userID: "user-1", balance: 50000},
		{userID: "user-2", balance: 1200},
	}

	for _, a := range accounts {
		if _, err := pool.Exec(ctx, upsertLoyaltySQL, a.userID, a.balance); err != nil {
			return errors.Wrapf(err, "upsert loyalty account %s", a.userID)
		}
		if _, err := pool.Exec(ctx, insertLoyaltyEntrySQL, uuid.NewString(), a.userID, a.balance, "bonus"); err != nil {
			return errors.Wrapf(err, "insert seed entry for %s", a.userID)
		}

		slog.Info("seeded loyalty account", slog.String("user", a.userID), slog.Int64("balance", a.balance))
	}

	return nil
}
