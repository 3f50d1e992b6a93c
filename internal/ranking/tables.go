package ranking

import (
	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
)

const defaultSurfaceSqm = 80

// €/m² by city tier for the derived market estimate.
var pricePerSqmTier1 = map[string]bool{"roma": true, "milano": true, "firenze": true, "bologna": true, "venezia": true}
var pricePerSqmTier2 = map[string]bool{"torino": true, "napoli": true, "genova": true, "palermo": true, "bari": true}

const (
	pricePerSqm1     = 3500
	pricePerSqm2     = 2200
	pricePerSqmOther = 1500
)

var typeMultiplier = map[domain.PropertyType]float64{
	domain.Apartment:  1.0,
	domain.Villa:      1.3,
	domain.Penthouse:  1.2,
	domain.Commercial: 0.9,
	domain.Office:     0.95,
	domain.Garage:     0.6,
	domain.Land:       0.3,
	domain.Rural:      0.7,
}

var locationTiers = []struct {
	score  float64
	cities map[string]bool
}{
	{90, map[string]bool{"roma": true, "milano": true, "firenze": true, "bologna": true, "venezia": true, "torino": true}},
	{75, map[string]bool{"napoli": true, "genova": true, "palermo": true, "bari": true, "catania": true, "verona": true}},
	{65, map[string]bool{"padova": true, "trieste": true, "brescia": true, "parma": true, "modena": true, "reggio emilia": true}},
}

const defaultLocationScore = 50

var liquidityBase = map[domain.PropertyType]float64{
	domain.Apartment:  90,
	domain.Penthouse:  85,
	domain.Villa:      70,
	domain.Office:     65,
	domain.Commercial: 60,
	domain.Garage:     75,
	domain.Warehouse:  50,
	domain.Land:       40,
	domain.Rural:      45,
}

const defaultLiquidity = 60

// Condition lexicon. Priority is table order: excellent, good, fair, poor.
const (
	condExcellent = "excellent"
	condGood      = "good"
	condFair      = "fair"
	condPoor      = "poor"
)

var conditionScores = map[string]float64{condExcellent: 90, condGood: 75, condFair: 50, condPoor: 25}

const defaultCondition = 60

var conditionLexicon = extract.NewLexicon([]extract.Term{
	{Word: "ottimo", Label: condExcellent},
	{Word: "ottime condizioni", Label: condExcellent},
	{Word: "ristrutturato", Label: condExcellent},
	{Word: "ristrutturata", Label: condExcellent},
	{Word: "nuovo ", Label: condExcellent},
	{Word: "nuova costruzione", Label: condExcellent},
	{Word: "recente", Label: condExcellent},
	{Word: "moderno", Label: condExcellent},
	{Word: "buono", Label: condGood},
	{Word: "buone condizioni", Label: condGood},
	{Word: "abitabile", Label: condGood},
	{Word: "discreto", Label: condGood},
	{Word: "da ristrutturare", Label: condFair},
	{Word: "necessita lavori", Label: condFair},
	{Word: "necessita di lavori", Label: condFair},
	{Word: "da ammodernare", Label: condFair},
	{Word: "pessimo", Label: condPoor},
	{Word: "da demolire", Label: condPoor},
	{Word: "rudere", Label: condPoor},
	{Word: "collabente", Label: condPoor},
})

// Legal lexicon labels and their score deltas.
const (
	legalOccupied  = "occupied"
	legalSeizure   = "seizure"
	legalMortgage  = "mortgage"
	legalVacant    = "vacant"
	legalFirstSale = "first_auction"
)

var legalDelta = map[string]float64{
	legalOccupied:  -30,
	legalSeizure:   -20,
	legalMortgage:  -15,
	legalVacant:    20,
	legalFirstSale: 10,
}

const legalBase = 70

var legalLexicon = extract.NewLexicon([]extract.Term{
	{Word: "occupato", Label: legalOccupied},
	{Word: "occupata", Label: legalOccupied},
	{Word: "occupato dal debitore", Label: legalOccupied},
	{Word: "pignorament", Label: legalSeizure},
	{Word: "ipotec", Label: legalMortgage},
	{Word: "libero ", Label: legalVacant},
	{Word: "libera ", Label: legalVacant},
	{Word: "prima asta", Label: legalFirstSale},
	{Word: "primo esperimento", Label: legalFirstSale},
})
