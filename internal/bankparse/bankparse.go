// Package bankparse extracts structured payment evidence from raw bank
// SMS/push notifications captured on trader devices. Rules are keyed by
// the source application package with text-alias fallbacks, because the
// same device mixes notifications from several banking apps.
package bankparse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Evidence is what a notification yields for matching: one or more
// candidate amounts, an optional partial card/account identifier, and
// the bank the rule set belongs to.
type Evidence struct {
	Bank     string
	Amounts  []decimal.Decimal
	CardTail string
}

// HasAmounts reports whether any amount was extracted.
func (e Evidence) HasAmounts() bool { return len(e.Amounts) > 0 }

type rule struct {
	bank     string
	packages []string
	aliases  []string
	amounts  []*regexp.Regexp
	cards    []*regexp.Regexp
}

// Rule order matters: SBP phrasing shows up inside other banks' apps and
// must win before the bank-specific generic amount patterns.
var rules = []rule{
	{
		bank:    "SBP",
		aliases: []string{"СБП", "SBP", "Система быстрых платежей"},
		amounts: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Поступление\s+([\d\s]+)\s*р.*?(?:SBP|СБП)`),
			regexp.MustCompile(`(?i)(?:SBP|СБП).*?\+?([\d\s]+(?:[.,]\d{2})?)\s*(?:руб|р|RUB|₽)`),
			regexp.MustCompile(`(?i)Перевод\s+СБП.*?([\d\s]+(?:[.,]\d{2})?)\s*(?:руб|р|RUB|₽)`),
			regexp.MustCompile(`(?i)Поступление\s+([\d\s]+)\s*р?\s+Счет\*\d{4}\s+(?:SBP|СБП)`),
		},
		cards: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Счет\*(\d{4})`),
			regexp.MustCompile(`\*(\d{4})`),
		},
	},
	{
		bank:     "Tinkoff",
		packages: []string{"com.idamob.tinkoff.android", "ru.tinkoff", "ru.tinkoff.sme"},
		aliases:  []string{"Тинькофф", "Tinkoff", "T-Bank", "TBANK"},
		amounts: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:Пополнение|Поступление|Перевод|зачисление)[,\s]+([\d\s]+(?:[.,]\d{2})?)\s*(?:RUB|RUR|₽|р|руб)`),
			regexp.MustCompile(`(?i)на\s+([\d\s]+(?:[.,]\d{2})?)\s*(?:RUB|RUR|₽|р|руб)`),
			regexp.MustCompile(`(?i)\+?([\d\s]+(?:[.,]\d{2})?)\s*(?:RUB|RUR|₽|р|руб)`),
		},
		cards: []*regexp.Regexp{
			regexp.MustCompile(`MIR-(\d{4})`),
			regexp.MustCompile(`(?i)Карта\s*\*(\d{4})`),
			regexp.MustCompile(`\*(\d{4})`),
		},
	},
	{
		bank:     "Alfa-Bank",
		packages: []string{"ru.alfabank.mobile.android", "ru.alfabank"},
		aliases:  []string{"Альфа-Банк", "Альфа Банк", "ALFABANK"},
		amounts: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:Перевод|Зачисление|зачисление)\s*\+?([\d\s]+)\s*р`),
			regexp.MustCompile(`(?i)\+?([\d\s]+(?:[.,]\d{2})?)\s*(?:р|руб|RUB|RUR)`),
		},
		cards: []*regexp.Regexp{
			regexp.MustCompile(`MIR-(\d{4})`),
			regexp.MustCompile(`\*(\d{4})`),
		},
	},
	{
		bank:     "Sberbank",
		packages: []string{"ru.sberbankmobile", "com.sberbank", "ru.sberbank.android"},
		aliases:  []string{"Сбербанк", "Sberbank", "СБЕР"},
		amounts: []*regexp.Regexp{
			regexp.MustCompile(`(?i)СБЕР\s*\+?([\d\s]+(?:[.,]\d{2})?)\s*₽`),
			regexp.MustCompile(`(?i)(?:Перевод|зачисление|поступление)\s+([\d\s]+)\s*р`),
			regexp.MustCompile(`(?i)\+?([\d\s]+(?:[.,]\d{2})?)\s*(?:р|руб|RUB|₽)`),
		},
		cards: []*regexp.Regexp{
			regexp.MustCompile(`MIR-(\d{4})`),
			regexp.MustCompile(`\*(\d{4})`),
		},
	},
}

// genericAmount is the last-resort amount pattern applied when no bank
// rule recognizes the notification. Requires an explicit currency marker
// so plain counters and codes are not mistaken for amounts.
var genericAmount = regexp.MustCompile(`(?i)([\d\s]{1,12}(?:[.,]\d{1,2})?)\s*(?:руб|р\.|RUB|₽)`)

// Extract parses payment evidence out of a notification. packageName is
// the Android package of the source app; title and message hold the
// visible notification text.
func Extract(packageName, title, message string) Evidence {
	content := strings.TrimSpace(strings.Join([]string{title, message}, " "))
	if content == "" {
		return Evidence{}
	}

	if r, ok := matchRule(packageName, content); ok {
		ev := Evidence{Bank: r.bank}
		ev.Amounts = extractAmounts(r.amounts, content)
		ev.CardTail = extractFirst(r.cards, content)
		if ev.HasAmounts() {
			return ev
		}
	}

	return Evidence{Amounts: extractAmounts([]*regexp.Regexp{genericAmount}, content)}
}

func matchRule(packageName, content string) (rule, bool) {
	for _, r := range rules {
		for _, pkg := range r.packages {
			if strings.HasPrefix(packageName, pkg) {
				return r, true
			}
		}
	}
	for _, r := range rules {
		for _, alias := range r.aliases {
			if strings.Contains(strings.ToLower(content), strings.ToLower(alias)) {
				return r, true
			}
		}
	}
	return rule{}, false
}

func extractAmounts(patterns []*regexp.Regexp, content string) []decimal.Decimal {
	seen := make(map[string]struct{})
	var amounts []decimal.Decimal
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			amount, ok := parseAmount(m[1])
			if !ok {
				continue
			}
			key := amount.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			amounts = append(amounts, amount)
		}
		if len(amounts) > 0 {
			return amounts
		}
	}
	return amounts
}

func extractFirst(patterns []*regexp.Regexp, content string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(content); m != nil {
			return m[1]
		}
	}
	return ""
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(raw, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || amount.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return amount.Truncate(2), true
}
