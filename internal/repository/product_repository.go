package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrConstraintViolation marks a record the database refused. Fatal for
	// that one product, recoverable for the rest of the page.
	ErrConstraintViolation = errors.New("constraint violation")
)

// ProductRepository defines the interface for product data access.
// UpsertAggregate is the reconciler's single write path.
type ProductRepository interface {
	// UpsertAggregate idempotently writes a product aggregate keyed by
	// (shopID, shopifyID). Child variants and images are replaced wholesale.
	// The whole aggregate is written in one transaction.
	UpsertAggregate(ctx context.Context, shopID uuid.UUID, agg domain.ProductAggregate) (uuid.UUID, error)
	FindByShopifyID(ctx context.Context, shopID uuid.UUID, shopifyID int64) (*domain.Product, error)
	ListByShop(ctx context.Context, shopID uuid.UUID, status string, page, pageSize int) ([]*domain.Product, int, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]*domain.Variant, error)
	ListImages(ctx context.Context, productID uuid.UUID) ([]*domain.Image, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// UpsertAggregate inserts or updates the product row, then deletes and
// reinserts its variants and images so local state converges to the remote
// state even when children were removed or reordered remotely.
func (r *productRepository) UpsertAggregate(ctx context.Context, shopID uuid.UUID, agg domain.ProductAggregate) (localID uuid.UUID, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("failed to commit aggregate: %w", e)
		}
	}()

	localID, err = r.upsertProduct(ctx, tx, shopID, agg.Product)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM variants WHERE product_id = $1`, localID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to delete variants: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM images WHERE product_id = $1`, localID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to delete images: %w", err)
	}

	for _, v := range agg.Variants {
		if err = r.insertVariant(ctx, tx, localID, v); err != nil {
			return uuid.Nil, err
		}
	}
	for _, img := range agg.Images {
		if err = r.insertImage(ctx, tx, localID, img); err != nil {
			return uuid.Nil, err
		}
	}

	return localID, nil
}

func (r *productRepository) upsertProduct(ctx context.Context, tx *sql.Tx, shopID uuid.UUID, p domain.Product) (uuid.UUID, error) {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	options, err := json.Marshal(p.Options)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal options: %w", err)
	}

	var existingID uuid.UUID
	selErr := tx.QueryRowContext(
		ctx,
		`SELECT id FROM products WHERE shop_id = $1 AND shopify_id = $2`,
		shopID, p.ShopifyID,
	).Scan(&existingID)

	now := time.Now().UTC()

	switch {
	case selErr == nil:
		query := `
			UPDATE products
			SET title = $2, body_html = $3, vendor = $4, product_type = $5,
			    status = $6, handle = $7, tags = $8, options = $9,
			    published_at = $10, shopify_data = $11, synced_at = $12, updated_at = $12
			WHERE id = $1
		`
		_, err := tx.ExecContext(
			ctx, query,
			existingID,
			p.Title, p.BodyHTML, p.Vendor, p.ProductType,
			p.Status, p.Handle, tags, options,
			p.PublishedAt, nullableJSON(p.ShopifyData), now,
		)
		if err != nil {
			return uuid.Nil, classifyWriteError("update product", err)
		}
		return existingID, nil

	case selErr == sql.ErrNoRows:
		id := uuid.New()
		query := `
			INSERT INTO products (
				id, shop_id, shopify_id, title, body_html, vendor, product_type,
				status, handle, tags, options, published_at, shopify_data,
				synced_at, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, $14)
		`
		_, err := tx.ExecContext(
			ctx, query,
			id, shopID, p.ShopifyID, p.Title, p.BodyHTML, p.Vendor, p.ProductType,
			p.Status, p.Handle, tags, options, p.PublishedAt, nullableJSON(p.ShopifyData),
			now,
		)
		if err != nil {
			return uuid.Nil, classifyWriteError("insert product", err)
		}
		return id, nil

	default:
		return uuid.Nil, fmt.Errorf("failed to look up product: %w", selErr)
	}
}

func (r *productRepository) insertVariant(ctx context.Context, tx *sql.Tx, productID uuid.UUID, v domain.Variant) error {
	query := `
		INSERT INTO variants (
			id, product_id, shopify_id, title, price, compare_at_price, sku,
			barcode, position, inventory_quantity, inventory_policy,
			inventory_management, fulfillment_service, weight, weight_unit,
			option1, option2, option3, shopify_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := tx.ExecContext(
		ctx, query,
		uuid.New(), productID, v.ShopifyID, v.Title, v.Price, v.CompareAtPrice, v.SKU,
		v.Barcode, v.Position, v.InventoryQuantity, v.InventoryPolicy,
		v.InventoryManagement, v.FulfillmentService, v.Weight, v.WeightUnit,
		v.Option1, v.Option2, v.Option3, nullableJSON(v.ShopifyData),
	)
	if err != nil {
		return classifyWriteError("insert variant", err)
	}
	return nil
}

func (r *productRepository) insertImage(ctx context.Context, tx *sql.Tx, productID uuid.UUID, img domain.Image) error {
	query := `
		INSERT INTO images (id, product_id, shopify_id, src, position, alt, shopify_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(
		ctx, query,
		uuid.New(), productID, img.ShopifyID, img.Src, img.Position, img.Alt, nullableJSON(img.ShopifyData),
	)
	if err != nil {
		return classifyWriteError("insert image", err)
	}
	return nil
}

// FindByShopifyID retrieves a product by its sync idempotency key
func (r *productRepository) FindByShopifyID(ctx context.Context, shopID uuid.UUID, shopifyID int64) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE shop_id = $1 AND shopify_id = $2`, productColumns)
	return scanProduct(r.db.QueryRowContext(ctx, query, shopID, shopifyID))
}

const productColumns = `
	id, shop_id, shopify_id, title, body_html, vendor, product_type, status,
	handle, tags, options, published_at, shopify_data, synced_at, created_at, updated_at
`

// ListByShop retrieves a shop's products with optional status filtering and
// pagination, newest first
func (r *productRepository) ListByShop(ctx context.Context, shopID uuid.UUID, status string, page, pageSize int) ([]*domain.Product, int, error) {
	whereClause := "WHERE shop_id = $1"
	args := []interface{}{shopID}

	if status != "" {
		whereClause += " AND status = $2"
		args = append(args, status)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, productColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}

	return products, total, nil
}

// ListVariants retrieves a product's variants in position order
func (r *productRepository) ListVariants(ctx context.Context, productID uuid.UUID) ([]*domain.Variant, error) {
	query := `
		SELECT id, product_id, shopify_id, title, price, compare_at_price, sku,
		       barcode, position, inventory_quantity, inventory_policy,
		       inventory_management, fulfillment_service, weight, weight_unit,
		       option1, option2, option3, shopify_data
		FROM variants
		WHERE product_id = $1
		ORDER BY position ASC, shopify_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	variants := []*domain.Variant{}
	for rows.Next() {
		v := &domain.Variant{}
		var raw []byte
		err := rows.Scan(
			&v.ID, &v.ProductID, &v.ShopifyID, &v.Title, &v.Price, &v.CompareAtPrice, &v.SKU,
			&v.Barcode, &v.Position, &v.InventoryQuantity, &v.InventoryPolicy,
			&v.InventoryManagement, &v.FulfillmentService, &v.Weight, &v.WeightUnit,
			&v.Option1, &v.Option2, &v.Option3, &raw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if len(raw) > 0 {
			v.ShopifyData = json.RawMessage(raw)
		}
		variants = append(variants, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}

	return variants, nil
}

// ListImages retrieves a product's images in position order
func (r *productRepository) ListImages(ctx context.Context, productID uuid.UUID) ([]*domain.Image, error) {
	query := `
		SELECT id, product_id, shopify_id, src, position, alt, shopify_data
		FROM images
		WHERE product_id = $1
		ORDER BY position ASC, shopify_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := []*domain.Image{}
	for rows.Next() {
		img := &domain.Image{}
		var raw []byte
		if err := rows.Scan(&img.ID, &img.ProductID, &img.ShopifyID, &img.Src, &img.Position, &img.Alt, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		if len(raw) > 0 {
			img.ShopifyData = json.RawMessage(raw)
		}
		images = append(images, img)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}

	return images, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var (
		tags    []byte
		options []byte
		raw     []byte
	)

	err := row.Scan(
		&p.ID, &p.ShopID, &p.ShopifyID, &p.Title, &p.BodyHTML, &p.Vendor,
		&p.ProductType, &p.Status, &p.Handle, &tags, &options,
		&p.PublishedAt, &raw, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &p.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
	}
	if len(raw) > 0 {
		p.ShopifyData = json.RawMessage(raw)
	}

	return p, nil
}

// classifyWriteError maps integrity errors (unique, not-null, check, FK) to
// ErrConstraintViolation so the coordinator can isolate the bad record.
func classifyWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23502", "23514", "23503":
			return fmt.Errorf("%s: %w: %s", op, ErrConstraintViolation, pgErr.Message)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
