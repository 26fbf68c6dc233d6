package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

//go:embed migrations/*.sql
var migrationFS embed.FS

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql")}
}

// OpenMySQL opens a pool with the DSN options the adapter depends on:
// parsed DATETIME columns and multi-statement migration files.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// MigrateMySQL applies the embedded schema migrations.
func MigrateMySQL(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func (m *MySQLAdapter) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	if err := m.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return n > 0, nil
}

type productRow struct {
	ID               string              `db:"id"`
	Name             string              `db:"name"`
	Description      string              `db:"description"`
	Price            decimal.Decimal     `db:"price"`
	OldPrice         decimal.NullDecimal `db:"old_price"`
	Stock            int                 `db:"stock"`
	CategoryID       string              `db:"category_id"`
	Rating           float64             `db:"rating"`
	IsNew            bool                `db:"is_new"`
	IsPromo          bool                `db:"is_promo"`
	Specifications   []byte              `db:"specifications"`
	Image            string              `db:"image"`
	AdditionalImages []byte              `db:"additional_images"`
	CreatedAt        time.Time           `db:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at"`
}

const productColumns = `id, name, description, price, old_price, stock, category_id, rating,
	is_new, is_promo, specifications, image, additional_images, created_at, updated_at`

func (r productRow) toDomain() (domain.Product, error) {
	p := domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		CategoryID:  r.CategoryID,
		Rating:      r.Rating,
		IsNew:       r.IsNew,
		IsPromo:     r.IsPromo,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.OldPrice.Valid {
		old := r.OldPrice.Decimal
		p.OldPrice = &old
	}
	if err := json.Unmarshal(r.Specifications, &p.Specifications); err != nil {
		return p, fmt.Errorf("decode specifications of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.AdditionalImages, &p.AdditionalImages); err != nil {
		return p, fmt.Errorf("decode images of %s: %w", r.ID, err)
	}
	return p, nil
}

func productArgs(p *domain.Product) ([]any, error) {
	specs := p.Specifications
	if specs == nil {
		specs = map[string]string{}
	}
	specJSON, err := json.Marshal(specs)
	if err != nil {
		return nil, fmt.Errorf("encode specifications: %w", err)
	}
	images := p.AdditionalImages
	if images == nil {
		images = []string{}
	}
	imageJSON, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}

	var oldPrice decimal.NullDecimal
	if p.OldPrice != nil {
		oldPrice = decimal.NewNullDecimal(*p.OldPrice)
	}
	return []any{
		p.Name, p.Description, p.Price, oldPrice, p.Stock, p.CategoryID, p.Rating,
		p.IsNew, p.IsPromo, specJSON, p.Image, imageJSON, p.CreatedAt, p.UpdatedAt,
	}, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := m.db.GetContext(ctx, &row, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	where := " WHERE 1 = 1"
	var args []any
	if filter.CategoryID != "" {
		where += " AND category_id = ?"
		args = append(args, filter.CategoryID)
	}
	if filter.IsNew != nil {
		where += " AND is_new = ?"
		args = append(args, *filter.IsNew)
	}
	if filter.IsPromo != nil {
		where += " AND is_promo = ?"
		args = append(args, *filter.IsPromo)
	}
	if filter.Query != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	var total int64
	if err := m.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := "SELECT " + productColumns + " FROM products" + where + " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []productRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, product *domain.Product) error {
	args, err := productArgs(product)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, old_price, stock, category_id, rating,
			is_new, is_promo, specifications, image, additional_images, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{product.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, product *domain.Product) error {
	args, err := productArgs(product)
	if err != nil {
		return err
	}
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, old_price = ?, stock = ?, category_id = ?, rating = ?,
			is_new = ?, is_promo = ?, specifications = ?, image = ?, additional_images = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?`,
		append(args, product.ID)...,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return m.requireAffected(ctx, result, "products", product.ID, domain.ErrProductNotFound)
}

// requireAffected maps "no row changed" to notFound unless the row exists and
// simply already held the written values.
func (m *MySQLAdapter) requireAffected(ctx context.Context, result sql.Result, table, id string, notFound error) error {
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	ok, err := m.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound
	}
	return nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) DecrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND stock >= ?`,
		quantity, time.Now().UTC(), productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 1 {
		return nil
	}

	var stock int
	err = m.db.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("query inventory: %w", err)
	}
	return domain.ErrStockExceededFor(productID, quantity, stock)
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, updated_at = ?
		WHERE id = ?`,
		quantity, time.Now().UTC(), productID,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

const categoryColumns = `id, name, description, image, created_at, updated_at`

func (m *MySQLAdapter) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := m.db.GetContext(ctx, &c, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return &c, nil
}

func (m *MySQLAdapter) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories := []domain.Category{}
	if err := m.db.SelectContext(ctx, &categories, "SELECT "+categoryColumns+" FROM categories ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (m *MySQLAdapter) CreateCategory(ctx context.Context, category *domain.Category) error {
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO categories (id, name, description, image, created_at, updated_at)
		VALUES (:id, :name, :description, :image, :created_at, :updated_at)`,
		category,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateCategory(ctx context.Context, category *domain.Category) error {
	result, err := m.db.NamedExecContext(ctx, `
		UPDATE categories
		SET name = :name, description = :description, image = :image, updated_at = :updated_at
		WHERE id = :id`,
		category,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return m.requireAffected(ctx, result, "categories", category.ID, domain.ErrCategoryNotFound)
}

func (m *MySQLAdapter) DeleteCategory(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}
