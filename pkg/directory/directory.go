// Package directory is the Neo4j-backed mechanic directory: the durable
// roster that the document store's mechanics collection is hydrated from.
// Profiles live as (:Mechanic) nodes keyed by id.
package directory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sosmeca/sosmeca-server/engine/domain"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Directory reads and writes mechanic profiles in Neo4j.
type Directory struct {
	driver     neo4j.DriverWithContext
	newSession func(ctx context.Context) runner // for testing
}

// New creates a directory over the given driver.
func New(driver neo4j.DriverWithContext) *Directory {
	return &Directory{driver: driver}
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (d *Directory) session(ctx context.Context) runner {
	if d.newSession != nil {
		return d.newSession(ctx)
	}
	return &sessionAdapter{sess: d.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// Get returns the profile with the given id.
func (d *Directory) Get(ctx context.Context, id string) (domain.MechanicProfile, error) {
	sess := d.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "MATCH (m:Mechanic {id: $id}) RETURN m", map[string]any{"id": id})
	if err != nil {
		return domain.MechanicProfile{}, err
	}
	if !res.Next(ctx) {
		return domain.MechanicProfile{}, fmt.Errorf("mechanic %s: %w", id, domain.ErrNotFound)
	}
	return fromRecord(res.Record())
}

// Available lists profiles currently flagged available.
func (d *Directory) Available(ctx context.Context) ([]domain.MechanicProfile, error) {
	sess := d.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, "MATCH (m:Mechanic {available: true}) RETURN m", nil)
	if err != nil {
		return nil, err
	}
	var out []domain.MechanicProfile
	for res.Next(ctx) {
		p, err := fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert creates or updates a profile node.
func (d *Directory) Upsert(ctx context.Context, p domain.MechanicProfile) error {
	if err := domain.ValidateProfile(p); err != nil {
		return err
	}
	sess := d.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		"MERGE (m:Mechanic {id: $id}) SET m += $props",
		map[string]any{"id": p.ID, "props": toProps(p)})
	return err
}

// SetAvailability toggles a mechanic's availability flag.
func (d *Directory) SetAvailability(ctx context.Context, id string, available bool) error {
	sess := d.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx,
		"MATCH (m:Mechanic {id: $id}) SET m.available = $available RETURN m.id",
		map[string]any{"id": id, "available": available})
	if err != nil {
		return err
	}
	if !res.Next(ctx) {
		return fmt.Errorf("mechanic %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func toProps(p domain.MechanicProfile) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"phone":        p.Phone,
		"whatsapp":     p.WhatsApp,
		"specialties":  p.Specialties,
		"latitude":     p.Latitude,
		"longitude":    p.Longitude,
		"radius_km":    p.RadiusKm,
		"available":    p.Available,
		"rating":       p.Rating,
		"review_count": int64(p.ReviewCount),
		"description":  p.Description,
	}
}

func fromRecord(rec *neo4j.Record) (domain.MechanicProfile, error) {
	raw, ok := rec.Get("m")
	if !ok {
		return domain.MechanicProfile{}, fmt.Errorf("record missing mechanic node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return domain.MechanicProfile{}, fmt.Errorf("unexpected record value %T", raw)
	}
	props := node.Props
	return domain.MechanicProfile{
		ID:          str(props, "id"),
		FirstName:   str(props, "first_name"),
		LastName:    str(props, "last_name"),
		Phone:       str(props, "phone"),
		WhatsApp:    str(props, "whatsapp"),
		Specialties: strs(props, "specialties"),
		Latitude:    f64(props, "latitude"),
		Longitude:   f64(props, "longitude"),
		RadiusKm:    f64(props, "radius_km"),
		Available:   boolean(props, "available"),
		Rating:      f64(props, "rating"),
		ReviewCount: int(i64(props, "review_count")),
		Description: str(props, "description"),
	}, nil
}

func str(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func strs(props map[string]any, key string) []string {
	raw, _ := props[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func f64(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func i64(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func boolean(props map[string]any, key string) bool {
	b, _ := props[key].(bool)
	return b
}
