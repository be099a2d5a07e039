package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"funnelscope/internal/database"
	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
)

const seedBatchSize = 500

// Seeder fills the database with synthetic shopper sessions so funnel
// reports have realistic traffic to work on in development.
type Seeder struct {
	DBManager    *database.DBManager
	Logger       *slog.Logger
	SessionCount int

	rng *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager *database.DBManager, logger *slog.Logger, sessionCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionCount <= 0 {
		sessionCount = 1000
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithSeed fixes the generator seed so repeated runs produce the same
// traffic shape. Session IDs stay random; everything else is reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

// journeyShapes weights how deep a partial session gets before leaving.
// Most traffic bounces near the top; a thin tail makes it into the cart.
var journeyShapes = []struct {
	reach  funnel.Stage
	weight int
}{
	{funnel.StageHomepage, 30},
	{funnel.StageCategory, 25},
	{funnel.StageProduct, 20},
	{funnel.StageAddToCart, 15},
	{funnel.StageCartView, 10},
}

// Raw values as storefront trackers emit them. The collector normalizes
// these to the canonical device and source vocabulary.
var (
	seedDevices = []string{"desktop", "mobile", "tablet"}
	seedSources = []string{"organic_search", "paid_search", "social_media", "direct", "email", "referral"}
)

var (
	productWords      = []string{"aurora", "cobalt", "drift", "ember", "flux", "harbor", "lumen", "nimbus", "quartz", "sable"}
	productTiers      = []string{"Pro", "Max", "Ultra", "Basic", "Premium", "Lite"}
	productCategories = []string{"electronics", "clothing", "books", "home_decor", "toys", "beauty"}
)

// Run generates SessionCount synthetic sessions and writes them in batches.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("sessionCount", s.SessionCount))

	db := s.DBManager.GetConnection()

	inputs := make([]sessions.CollectSessionInput, 0, s.SessionCount)
	for i := 0; i < s.SessionCount; i++ {
		inputs = append(inputs, generateSession(s.rng))
	}

	eventsCreated := 0
	for from := 0; from < len(inputs); from += seedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		to := from + seedBatchSize
		if to > len(inputs) {
			to = len(inputs)
		}

		batch, err := sessions.BuildBatch(s.Logger, inputs[from:to])
		if err != nil {
			return fmt.Errorf("failed to build seed batch: %w", err)
		}

		err = database.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return sessions.InsertBatch(tx, batch)
		})
		if err != nil {
			return fmt.Errorf("failed to insert seed batch: %w", err)
		}
		eventsCreated += len(batch.Events)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("sessions", len(inputs)),
		slog.Int("events", eventsCreated),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// generateSession builds one synthetic shopper session. Roughly 15% of
// sessions walk the full funnel; the candidates thin out at checkout and
// again at payment, so only part of them convert.
func generateSession(rng *rand.Rand) sessions.CollectSessionInput {
	baseTime := time.Now().Add(-time.Duration(rng.IntN(30*24*60*60)) * time.Second)

	var path []funnel.Stage
	if rng.Float64() < 0.15 {
		reach := funnel.StageCartView
		if rng.Float64() < 0.75 {
			reach = funnel.StagePayment
			if rng.Float64() < 0.70 {
				reach = funnel.StagePurchase
			}
		}
		path = stagesThrough(reach)
	} else {
		path = stagesThrough(pickShape(rng))
		// Some shoppers land deeper in the funnel from an ad or a shared
		// product link and never see the homepage.
		if len(path) > 1 && rng.Float64() < 0.25 {
			path = path[1:]
		}
	}

	input := sessions.CollectSessionInput{
		SessionID: uuid.NewString(),
		Device:    seedDevices[rng.IntN(len(seedDevices))],
		Source:    seedSources[rng.IntN(len(seedSources))],
		StartedAt: baseTime,
		Events:    make([]sessions.CollectEventInput, 0, len(path)),
	}

	cumulativeTime := time.Duration(0)
	for i, stage := range path {
		if i > 0 {
			cumulativeTime += time.Duration(rng.IntN(26)+5) * time.Second
		}

		event := sessions.CollectEventInput{
			Stage:     stage.Key(),
			Timestamp: baseTime.Add(cumulativeTime),
		}
		switch stage {
		case funnel.StageAddToCart:
			event.Metadata = marshalMetadata(productMetadata(rng))
		case funnel.StagePurchase:
			event.Metadata = marshalMetadata(orderMetadata(rng))
		}
		input.Events = append(input.Events, event)
	}

	return input
}

// stagesThrough returns the funnel prefix ending at reach.
func stagesThrough(reach funnel.Stage) []funnel.Stage {
	path := make([]funnel.Stage, 0, reach.Rank())
	for _, stage := range funnel.Stages() {
		if stage > reach {
			break
		}
		path = append(path, stage)
	}
	return path
}

func pickShape(rng *rand.Rand) funnel.Stage {
	total := 0
	for _, shape := range journeyShapes {
		total += shape.weight
	}
	n := rng.IntN(total)
	for _, shape := range journeyShapes {
		if n < shape.weight {
			return shape.reach
		}
		n -= shape.weight
	}
	return journeyShapes[len(journeyShapes)-1].reach
}

func productMetadata(rng *rand.Rand) map[string]interface{} {
	return map[string]interface{}{
		"product_id":       rng.IntN(9000) + 1000,
		"product_name":     productName(rng),
		"product_category": productCategories[rng.IntN(len(productCategories))],
		"product_price":    roundCents(rng.Float64()*490 + 10),
	}
}

func orderMetadata(rng *rand.Rand) map[string]interface{} {
	numProducts := rng.IntN(4) + 1
	products := make([]map[string]interface{}, 0, numProducts)
	orderTotal := 0.0
	for i := 0; i < numProducts; i++ {
		price := roundCents(rng.Float64()*490 + 10)
		quantity := rng.IntN(3) + 1
		products = append(products, map[string]interface{}{
			"product_id":       rng.IntN(9000) + 1000,
			"product_name":     productName(rng),
			"product_category": productCategories[rng.IntN(len(productCategories))],
			"product_price":    price,
			"quantity":         quantity,
		})
		orderTotal += price * float64(quantity)
	}

	return map[string]interface{}{
		"order_id":    rng.IntN(900000) + 100000,
		"order_total": roundCents(orderTotal),
		"products":    products,
	}
}

func productName(rng *rand.Rand) string {
	return fmt.Sprintf("%s %s", productWords[rng.IntN(len(productWords))], productTiers[rng.IntN(len(productTiers))])
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func marshalMetadata(m map[string]interface{}) string {
	metadataBytes, _ := json.Marshal(m)
	return string(metadataBytes)
}
