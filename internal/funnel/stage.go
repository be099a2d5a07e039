package funnel

// Stage is one step of the fixed e-commerce conversion funnel. Stages are
// totally ordered by rank; the zero value StageNone marks a session that
// never produced a funnel event.
type Stage int

const (
	StageNone Stage = iota
	StageHomepage
	StageCategory
	StageProduct
	StageAddToCart
	StageCartView
	StageCheckout
	StagePayment
	StagePurchase
)

// NumStages is the number of real funnel stages, StageNone excluded.
const NumStages = 8

var stageLabels = map[Stage]string{
	StageHomepage:  "Homepage Visit",
	StageCategory:  "Category Page Visit",
	StageProduct:   "Product Page Visit",
	StageAddToCart: "Add to Cart",
	StageCartView:  "Cart View",
	StageCheckout:  "Checkout",
	StagePayment:   "Payment",
	StagePurchase:  "Purchase",
}

var stageKeys = map[Stage]string{
	StageHomepage:  "homepage",
	StageCategory:  "category_page",
	StageProduct:   "product_page",
	StageAddToCart: "add_to_cart",
	StageCartView:  "cart_view",
	StageCheckout:  "checkout",
	StagePayment:   "payment",
	StagePurchase:  "purchase",
}

var keyToStage = func() map[string]Stage {
	m := make(map[string]Stage, len(stageKeys))
	for s, k := range stageKeys {
		m[k] = s
	}
	return m
}()

// Rank returns the 1-based position of the stage in the funnel, 0 for
// StageNone.
func (s Stage) Rank() int {
	return int(s)
}

// Valid reports whether s is one of the eight real funnel stages.
func (s Stage) Valid() bool {
	return s >= StageHomepage && s <= StagePurchase
}

// Label returns the human-readable stage name used in reports and exports.
func (s Stage) Label() string {
	return stageLabels[s]
}

// Key returns the stable machine identifier used in collection payloads.
func (s Stage) Key() string {
	return stageKeys[s]
}

// Stages returns the eight funnel stages in order.
func Stages() []Stage {
	return []Stage{
		StageHomepage,
		StageCategory,
		StageProduct,
		StageAddToCart,
		StageCartView,
		StageCheckout,
		StagePayment,
		StagePurchase,
	}
}

// StageFromKey resolves a collection-payload stage key. The boolean is false
// for keys outside the funnel vocabulary.
func StageFromKey(key string) (Stage, bool) {
	s, ok := keyToStage[key]
	return s, ok
}

// StageFromRank resolves a stored integer rank back to its stage. Ranks
// outside 1..NumStages yield StageNone and false.
func StageFromRank(rank int) (Stage, bool) {
	s := Stage(rank)
	if !s.Valid() {
		return StageNone, false
	}
	return s, true
}
