// src/processors/classify.go
package processors

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/username/flexfolio/src/models"
)

var fxPairRe = regexp.MustCompile(`^([A-Z]{3})\.([A-Z]{3})$`)

// rowView caches the parsed fields classification depends on.
// Classification is a pure function of these fields.
type rowView struct {
	row       models.RawRow
	code      string
	lowerDesc string
	lod       string
	exchange  string
	symbol    string
	direction string
	buySell   string
	amount    float64
	quantity  float64
	price     float64
	hasQty    bool
	hasPrice  bool
}

func viewOf(row models.RawRow) rowView {
	v := rowView{
		row:       row,
		code:      strings.ToUpper(strings.TrimSpace(row.Get(colActivityCode))),
		lowerDesc: strings.ToLower(row.Get(colDescription)),
		lod:       strings.ToUpper(strings.TrimSpace(row.Get(colLevelOfDetail))),
		exchange:  strings.TrimSpace(row.Get(colExchange)),
		symbol:    strings.TrimSpace(row.Get(colSymbol)),
		direction: strings.ToUpper(strings.TrimSpace(row.Get(colDirection))),
		buySell:   strings.ToUpper(strings.TrimSpace(row.Get(colBuySell))),
	}
	v.amount = parseFloat(row.Get(colAmount))
	v.quantity, v.hasQty = parseFloatOk(row.Get(colQuantity))
	v.price, v.hasPrice = parseFloatOk(row.Get(colTradePrice))
	return v
}

// rule is one classification step. A nil emit means the row is skipped,
// counted under the rule's name. Rules run in priority order and the
// first match wins.
type rule struct {
	name  string
	match func(rowView) bool
	emit  func(rowView) []models.ClassifiedRow
}

// Classification is the classifier's output: every input row ends up
// either in Rows or in the skip counters, never silently dropped.
type Classification struct {
	Rows        []models.ClassifiedRow
	Skipped     int
	SkipReasons map[string]int
}

type Classifier struct {
	rules []rule
}

func NewClassifier() *Classifier {
	return &Classifier{rules: buildRules()}
}

func (c *Classifier) Classify(rows []models.RawRow) *Classification {
	result := &Classification{SkipReasons: make(map[string]int)}
	for _, raw := range rows {
		v := viewOf(raw)
		for _, r := range c.rules {
			if !r.match(v) {
				continue
			}
			if r.emit == nil {
				result.Skipped++
				result.SkipReasons[r.name]++
			} else {
				result.Rows = append(result.Rows, r.emit(v)...)
			}
			break
		}
	}
	return result
}

func buildRules() []rule {
	rules := []rule{
		// Known duplicate/summary artifacts first. These are counted,
		// never errors.
		{
			name: "summary-duplicate",
			match: func(v rowView) bool {
				return v.lod != "" && v.lod != "DETAIL" && v.lod != "EXECUTION"
			},
		},
		{
			name: "zero-amount-transfer",
			match: func(v rowView) bool {
				return v.direction != "" && v.amount == 0
			},
		},
		{
			name: "fee-refund",
			match: func(v rowView) bool {
				return v.code == "OFEE" && v.amount > 0
			},
		},
		// Currency conversions: a dotted two-currency symbol executed at
		// the FX venue. One input row, two emitted legs.
		{
			name: "fx-conversion",
			match: func(v rowView) bool {
				return fxPairRe.MatchString(v.symbol) && v.exchange == fxVenue
			},
			emit: splitFXConversion,
		},
	}

	// Activity-code mapping.
	codeKinds := []struct {
		codes []string
		kind  models.ActivityKind
	}{
		{[]string{"DIV", "PIL"}, models.KindDividend},
		{[]string{"WHTAX", "FRTAX"}, models.KindTax},
		{[]string{"DEP"}, models.KindDeposit},
		{[]string{"WITH"}, models.KindWithdrawal},
		{[]string{"CINT"}, models.KindInterest},
		// Margin debit interest is booked as a cost of carrying the
		// position, i.e. a fee.
		{[]string{"DINT"}, models.KindFee},
		{[]string{"OFEE", "BFEE"}, models.KindFee},
	}
	for _, ck := range codeKinds {
		codes := ck.codes
		kind := ck.kind
		rules = append(rules, rule{
			name: "code-" + strings.ToLower(string(kind)),
			match: func(v rowView) bool {
				for _, c := range codes {
					if v.code == c {
						return true
					}
				}
				return false
			},
			emit: tagAs(kind),
		})
	}

	// Keyword classification of the free-text description. First match
	// wins; the more specific phrases come first.
	keywordKinds := []struct {
		phrases []string
		kind    models.ActivityKind
	}{
		{[]string{"withholding tax"}, models.KindTax},
		{[]string{"debit interest", "broker interest paid"}, models.KindFee},
		{[]string{"credit interest", "interest"}, models.KindInterest},
		{[]string{"vat", "service charge", "monthly activity fee", "fee"}, models.KindFee},
		{[]string{"dividend"}, models.KindDividend},
		{[]string{"deposit"}, models.KindDeposit},
		{[]string{"withdrawal", "disbursement"}, models.KindWithdrawal},
	}
	for _, kk := range keywordKinds {
		phrases := kk.phrases
		kind := kk.kind
		rules = append(rules, rule{
			name: "keyword-" + strings.ToLower(string(kind)),
			match: func(v rowView) bool {
				for _, p := range phrases {
					if strings.Contains(v.lowerDesc, p) {
						return true
					}
				}
				return false
			},
			emit: tagAs(kind),
		})
	}

	rules = append(rules,
		// Explicit transfer direction field.
		rule{
			name:  "transfer-in",
			match: func(v rowView) bool { return v.direction == "IN" },
			emit:  tagAs(models.KindTransferIn),
		},
		rule{
			name:  "transfer-out",
			match: func(v rowView) bool { return v.direction == "OUT" },
			emit:  tagAs(models.KindTransferOut),
		},
		// Trade fallback: a standard buy/sell/quantity/price shape.
		rule{
			name: "trade",
			match: func(v rowView) bool {
				return (v.buySell == "BUY" || v.buySell == "SELL") && v.hasQty && v.hasPrice
			},
			emit: func(v rowView) []models.ClassifiedRow {
				kind := models.KindBuy
				if v.buySell == "SELL" {
					kind = models.KindSell
				}
				return []models.ClassifiedRow{{Row: v.row, Kind: kind}}
			},
		},
		// Terminal catch-all. Every row ends in a tag or a counted skip.
		rule{
			name:  "unclassified",
			match: func(rowView) bool { return true },
		},
	)
	return rules
}

func tagAs(kind models.ActivityKind) func(rowView) []models.ClassifiedRow {
	return func(v rowView) []models.ClassifiedRow {
		return []models.ClassifiedRow{{Row: v.row, Kind: kind}}
	}
}

// splitFXConversion turns one conversion row into its two currency legs.
// Direction follows the buy/sell flag: buying EUR.USD receives the base
// currency (EUR) and pays the quote currency (USD) at the traded rate.
func splitFXConversion(v rowView) []models.ClassifiedRow {
	m := fxPairRe.FindStringSubmatch(v.symbol)
	base, quote := m[1], m[2]

	qty := math.Abs(v.quantity)
	rate := v.price
	baseAmount := qty
	quoteAmount := qty * rate

	inLeg := models.ClassifiedRow{
		Row: v.row, Kind: models.KindTransferIn, FXPair: v.symbol,
		Currency: base, Amount: baseAmount, Overridden: true,
	}
	outLeg := models.ClassifiedRow{
		Row: v.row, Kind: models.KindTransferOut, FXPair: v.symbol,
		Currency: quote, Amount: quoteAmount, Overridden: true,
	}
	if v.buySell == "SELL" {
		inLeg.Currency, outLeg.Currency = quote, base
		inLeg.Amount, outLeg.Amount = quoteAmount, baseAmount
	}
	return []models.ClassifiedRow{outLeg, inLeg}
}

func parseFloat(s string) float64 {
	v, _ := parseFloatOk(s)
	return v
}

func parseFloatOk(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
