package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/BradenHooton/tasktrack/internal/database"
	"github.com/BradenHooton/tasktrack/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// resourceTables maps each protected resource kind to its table
var resourceTables = map[models.ResourceKind]string{
	models.ResourceTask: "tasks",
	models.ResourceTag:  "tags",
	models.ResourceUser: "users",
}

// OwnershipRepository reads the owner column of protected resources
type OwnershipRepository struct {
	pool *pgxpool.Pool
}

func NewOwnershipRepository(db *database.DB) *OwnershipRepository {
	return &OwnershipRepository{pool: db.Pool}
}

// FindOwner selects only id and ownerField for the resource. A malformed id is
// reported as not found.
func (r *OwnershipRepository) FindOwner(ctx context.Context, kind models.ResourceKind, resourceID, ownerField string) (string, error) {
	table, ok := resourceTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
	if _, err := uuid.Parse(resourceID); err != nil {
		return "", models.ErrNotFound
	}

	query := fmt.Sprintf(`SELECT id, %s::text FROM %s WHERE id = $1`,
		pq.QuoteIdentifier(ownerField), pq.QuoteIdentifier(table))

	var id string
	var owner *string
	if err := r.pool.QueryRow(ctx, query, resourceID).Scan(&id, &owner); err != nil {
		return "", database.MapPostgresError(err)
	}
	if owner == nil {
		return "", nil
	}
	return *owner, nil
}

// LookupFor binds FindOwner to one resource kind
func (r *OwnershipRepository) LookupFor(kind models.ResourceKind) auth.OwnerLookup {
	return func(ctx context.Context, resourceID, ownerField string) (string, error) {
		return r.FindOwner(ctx, kind, resourceID, ownerField)
	}
}

// Lookups returns the owner lookup table for every protected resource kind
func (r *OwnershipRepository) Lookups() map[models.ResourceKind]auth.OwnerLookup {
	lookups := make(map[models.ResourceKind]auth.OwnerLookup, len(resourceTables))
	for kind := range resourceTables {
		lookups[kind] = r.LookupFor(kind)
	}
	return lookups
}
