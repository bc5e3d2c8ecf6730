package generator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

// Follows gives every user between 1 and min(maxFanout, n-1) followed users
// drawn from a bounded candidate pool that never contains the user itself
func (g *Generator) Follows(ctx context.Context, userIDs []string, maxFanout int) (PhaseResult, error) {
	n := len(userIDs)
	ph := g.begin(model.KindFollow, int64(n))
	if n < 2 || maxFanout < 1 {
		return g.end(ph), nil
	}

	limit := min(maxFanout, n-1)
	pool := min(g.cfg.CandidatePool, n-1)
	pending := make([]model.Follow, 0, g.cfg.SubBatchSize)
	flush := func() {
		g.fanOut(ph, len(pending), func(i int) error {
			f := pending[i]
			if err := ph.call(model.PostgreSQL, func() error { return g.rel.CreateFollow(ctx, f) }); err != nil {
				return err
			}
			return ph.call(model.Neo4j, func() error { return g.graph.CreateFollow(ctx, f) })
		})
		pending = pending[:0]
	}

	for i, src := range userIDs {
		if err := ctx.Err(); err != nil {
			flush()
			return g.end(ph), err
		}
		fanout := 1 + g.rng.IntN(limit)
		candidates := pickDistinct(g.rng, n, pool, i)
		if fanout > len(candidates) {
			fanout = len(candidates)
		}
		now := time.Now().UTC()
		for _, j := range candidates[:fanout] {
			pending = append(pending, model.Follow{FollowerID: src, FollowedID: userIDs[j], CreatedAt: now})
			if len(pending) == g.cfg.SubBatchSize {
				flush()
			}
		}
		ph.done.Add(1)
	}
	flush()
	return g.end(ph), nil
}

// Purchases gives every sampled user between 0 and maxPerUser distinct
// products from the sampled product pool
func (g *Generator) Purchases(ctx context.Context, userIDs, productIDs []string, maxPerUser int) (PhaseResult, error) {
	users := sampleIDs(g.rng, userIDs, g.cfg.MaxPurchaseUsers)
	products := sampleIDs(g.rng, productIDs, g.cfg.MaxPurchaseProducts)
	ph := g.begin(model.KindPurchase, int64(len(users)))
	if len(users) == 0 || len(products) == 0 || maxPerUser < 1 {
		return g.end(ph), nil
	}

	type pair struct{ user, product string }
	pending := make([]pair, 0, g.cfg.SubBatchSize)
	flush := func() {
		g.fanOut(ph, len(pending), func(i int) error {
			p := pending[i]
			var purchase model.Purchase
			err := ph.call(model.PostgreSQL, func() error {
				var err error
				purchase, err = g.rel.CreatePurchase(ctx, p.user, p.product)
				return err
			})
			if err != nil {
				return err
			}
			return ph.call(model.Neo4j, func() error { return g.graph.CreatePurchase(ctx, purchase) })
		})
		pending = pending[:0]
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			flush()
			return g.end(ph), err
		}
		k := g.rng.IntN(maxPerUser + 1)
		for _, j := range pickDistinct(g.rng, len(products), k, -1) {
			pending = append(pending, pair{user: user, product: products[j]})
			if len(pending) == g.cfg.SubBatchSize {
				flush()
			}
		}
		ph.done.Add(1)
	}
	flush()
	return g.end(ph), nil
}

// fanOut runs n independent edge writes concurrently and counts each one.
// A failed write never cancels its siblings.
func (g *Generator) fanOut(ph *phase, n int, write func(i int) error) {
	if n == 0 {
		return
	}
	ph.attempt(n)

	var eg errgroup.Group
	eg.SetLimit(g.cfg.SubBatchSize)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := write(i); err != nil {
				ph.fail(1)
				g.logger.Debug("edge write failed", logging.Kind(string(ph.kind)), logging.Error(err))
				return nil
			}
			ph.succeed("")
			return nil
		})
	}
	eg.Wait()
}
