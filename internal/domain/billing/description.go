package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clinicore/clinicore/internal/domain/consultation"
)

// pluralRules maps known service-label substrings to their plural form.
// Detection is case-insensitive; only the matched substring is replaced, so
// "Sessão de fisioterapia" becomes "sessões de fisioterapia".
var pluralRules = []struct {
	singular string
	plural   string
}{
	{"sessão", "sessões"},
	{"consulta", "consultas"},
	{"avaliação", "avaliações"},
}

// BuildChargeDescription renders the human-readable description attached to a
// charge: one sentence per professional (services, professional identity,
// dated values) and a closing line naming the billed patient. Pure function
// of its input; callers must not invoke it with an empty consultation list.
func BuildChargeDescription(consultations []*consultation.Consultation, patientName, patientTaxID string) string {
	sorted := make([]*consultation.Consultation, len(consultations))
	copy(sorted, consultations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	// Group by professional, preserving order of first appearance.
	var order []string
	groups := make(map[string][]*consultation.Consultation)
	for _, c := range sorted {
		key := c.ProfessionalTaxID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	var b strings.Builder
	for _, key := range order {
		b.WriteString(professionalSentence(groups[key]))
		b.WriteString("\n")
	}

	if len(sorted) == 1 {
		b.WriteString(fmt.Sprintf("Atendimento realizado ao paciente %s, %s.", patientName, patientTaxID))
	} else {
		b.WriteString(fmt.Sprintf("Atendimentos realizados ao paciente %s, %s.", patientName, patientTaxID))
	}

	return b.String()
}

// professionalSentence renders one professional's services clause, identity
// and dated values. Input is non-empty and already sorted by date.
func professionalSentence(group []*consultation.Consultation) string {
	first := group[0]

	// Sub-group by service name, preserving order of first appearance.
	var serviceOrder []string
	counts := make(map[string]int)
	for _, c := range group {
		if _, ok := counts[c.ServiceName]; !ok {
			serviceOrder = append(serviceOrder, c.ServiceName)
		}
		counts[c.ServiceName]++
	}

	phrases := make([]string, 0, len(serviceOrder))
	for _, name := range serviceOrder {
		phrases = append(phrases, servicePhrase(name, counts[name]))
	}

	dates := make([]string, 0, len(group))
	for _, c := range group {
		dates = append(dates, fmt.Sprintf("%s (R$ %s)", c.Date.Format("02/01/2006"), formatValue(c.ServiceValue)))
	}

	verb := "realizada"
	dayWord := "no dia"
	if len(group) > 1 {
		verb = "realizadas"
		dayWord = "nos dias"
	}

	var b strings.Builder
	b.WriteString(strings.Join(phrases, ", "))
	b.WriteString(", ")
	b.WriteString(verb)
	b.WriteString(" ")
	b.WriteString(article(first.ProfessionalTitle))
	b.WriteString(" ")
	b.WriteString(strings.ToLower(first.ProfessionalTitle))
	b.WriteString(" ")
	b.WriteString(first.ProfessionalName)
	b.WriteString(", ")
	b.WriteString(first.ProfessionalTaxID)
	if first.ProfessionalLicense != nil && *first.ProfessionalLicense != "" {
		b.WriteString(", registro ")
		b.WriteString(*first.ProfessionalLicense)
	}
	b.WriteString(", ")
	b.WriteString(dayWord)
	b.WriteString(" ")
	b.WriteString(joinDates(dates))
	b.WriteString(".")
	return b.String()
}

// servicePhrase renders "1 sessão" or "3 sessões" for a service sub-group.
// Unknown service labels are used as-is, lower-cased.
func servicePhrase(serviceName string, count int) string {
	label := strings.ToLower(serviceName)
	if count > 1 {
		label = pluralize(label)
	}
	return fmt.Sprintf("%d %s", count, label)
}

// pluralize applies the first matching substring rule. Labels with no known
// singular form are left unchanged.
func pluralize(label string) string {
	for _, rule := range pluralRules {
		if idx := strings.Index(label, rule.singular); idx >= 0 {
			return label[:idx] + rule.plural + label[idx+len(rule.singular):]
		}
	}
	return label
}

// article picks the gendered contraction for "por" based on the professional
// title: feminine titles in Portuguese end in "a" (psicóloga, fisioterapeuta
// is ambiguous but conventionally addressed as "pela fisioterapeuta").
func article(title string) string {
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(title)), "a") {
		return "pela"
	}
	return "pelo"
}

// formatValue renders a monetary value with Brazilian decimal notation.
func formatValue(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}

// joinDates joins dated values with commas, using "e" before the last entry.
func joinDates(dates []string) string {
	if len(dates) == 1 {
		return dates[0]
	}
	return strings.Join(dates[:len(dates)-1], ", ") + " e " + dates[len(dates)-1]
}
