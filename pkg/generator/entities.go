package generator

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/model"
)

// entityOps binds the dual-write path for one entity type
type entityOps[N, E any] struct {
	insertBatch func(context.Context, []N) ([]E, error)
	insert      func(context.Context, N) (E, error)
	mirrorBatch func(context.Context, []E) error
	mirror      func(context.Context, E) error
	id          func(E) string
}

// Users generates count users in batches
func (g *Generator) Users(ctx context.Context, count int) (PhaseResult, error) {
	unix := time.Now().Unix()
	ops := entityOps[model.NewUser, model.User]{
		insertBatch: g.rel.InsertUsers,
		insert:      g.rel.InsertUser,
		mirrorBatch: g.graph.UpsertUsers,
		mirror:      g.graph.UpsertUser,
		id:          func(u model.User) string { return u.ID },
	}
	return generateEntities(ctx, g, model.KindUser, count, func(i int) model.NewUser {
		return newUser(g.rng, unix, i, g.hash)
	}, ops)
}

// Products generates count products in batches
func (g *Generator) Products(ctx context.Context, count int) (PhaseResult, error) {
	ops := entityOps[model.NewProduct, model.Product]{
		insertBatch: g.rel.InsertProducts,
		insert:      g.rel.InsertProduct,
		mirrorBatch: g.graph.UpsertProducts,
		mirror:      g.graph.UpsertProduct,
		id:          func(p model.Product) string { return p.ID },
	}
	return generateEntities(ctx, g, model.KindProduct, count, func(i int) model.NewProduct {
		return newProduct(g.rng, i)
	}, ops)
}

func generateEntities[N, E any](ctx context.Context, g *Generator, kind model.Kind, count int, build func(int) N, ops entityOps[N, E]) (PhaseResult, error) {
	if count < 0 {
		count = 0
	}
	ph := g.begin(kind, int64(count))

	size := g.cfg.BatchSize
	for start := 0; start < count; {
		if err := ctx.Err(); err != nil {
			return g.end(ph), err
		}
		end := start + size
		if end > count {
			end = count
		}
		// only ids outlive the batch
		batch := make([]N, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, build(i))
		}
		ph.attempt(len(batch))
		writeBatch(ctx, g, ph, batch, ops)
		ph.done.Add(int64(len(batch)))
		start = end
		size = g.adapt(size)
	}
	return g.end(ph), nil
}

func writeBatch[N, E any](ctx context.Context, g *Generator, ph *phase, batch []N, ops entityOps[N, E]) {
	var rows []E
	switch g.batched(ph, model.PostgreSQL, func() error {
		var err error
		rows, err = ops.insertBatch(ctx, batch)
		return err
	}) {
	case ActionAccept:
	case ActionPerItem:
		g.perItem(ctx, ph, len(batch), func(i int) (string, error) {
			var row E
			err := ph.call(model.PostgreSQL, func() error {
				var err error
				row, err = ops.insert(ctx, batch[i])
				return err
			})
			if err != nil {
				return "", err
			}
			if err := ph.call(model.Neo4j, func() error { return ops.mirror(ctx, row) }); err != nil {
				return "", err
			}
			return ops.id(row), nil
		})
		return
	default:
		ph.fail(len(batch))
		return
	}

	// a short RETURNING set leaves the missing rows failed
	ph.fail(len(batch) - len(rows))

	switch g.batched(ph, model.Neo4j, func() error { return ops.mirrorBatch(ctx, rows) }) {
	case ActionAccept:
		for _, row := range rows {
			ph.succeed(ops.id(row))
		}
	case ActionPerItem:
		g.perItem(ctx, ph, len(rows), func(i int) (string, error) {
			if err := ph.call(model.Neo4j, func() error { return ops.mirror(ctx, rows[i]) }); err != nil {
				return "", err
			}
			return ops.id(rows[i]), nil
		})
	default:
		ph.fail(len(rows))
	}
}
