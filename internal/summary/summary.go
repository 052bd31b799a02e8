// Package summary renders an application into the fixed-order narrative
// used for embedding and similarity search. The rendering is deterministic:
// the same package always produces the same text.
package summary

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var statusLabels = map[domain.ProfessionalStatus]string{
	domain.StatusEmployeeCDI:  "permanent employee",
	domain.StatusEmployeeCDD:  "fixed-term employee",
	domain.StatusSelfEmployed: "self-employed",
	domain.StatusEntrepreneur: "entrepreneur",
	domain.StatusUnemployed:   "unemployed",
}

var historyLabels = map[domain.BankingHistory]string{
	domain.HistoryNoIncident:     "no banking incidents",
	domain.HistoryMinorIncidents: "minor banking incidents",
	domain.HistoryMajorIncidents: "major banking incidents",
}

var purposeLabels = map[domain.CreditPurpose]string{
	domain.PurposeInvestment:       "an investment",
	domain.PurposeNecessaryExpense: "a necessary expense",
	domain.PurposeComfortExpense:   "a comfort expense",
}

func label[K comparable](m map[K]string, k K) string {
	if s, ok := m[k]; ok {
		return s
	}
	return strings.ToLower(fmt.Sprint(k))
}

// Render produces the narrative summary of an application.
func Render(pkg *domain.ApplicationPackage) string {
	var b strings.Builder

	client := pkg.ClientIdentity
	fmt.Fprintf(&b, "Client aged %d, %s client with %.0f years of banking seniority. ",
		client.Age, strings.ToLower(string(client.ClientStatus)), client.BankingSeniorityYears)

	prof := pkg.ProfessionalSituation
	fmt.Fprintf(&b, "Professional situation: %s with %.1f years of seniority, %s stability. ",
		label(statusLabels, prof.ProfessionalStatus), prof.SeniorityYears,
		strings.ToLower(string(prof.Stability)))

	personal := pkg.PersonalSituation
	fmt.Fprintf(&b, "Family: %s, %d dependents",
		strings.ToLower(string(personal.MaritalStatus)), personal.DependentsCount)
	if personal.SpouseExists && personal.SpouseInfo != nil {
		fmt.Fprintf(&b, ", spouse is %s with income %.0f",
			label(statusLabels, personal.SpouseInfo.ProfessionalStatus),
			personal.SpouseInfo.MonthlyIncome)
	}
	b.WriteString(". ")

	fin := pkg.FinancialSituation
	fmt.Fprintf(&b, "Finances: net income %.0f, fixed expenses %.0f, existing debt %.0f, "+
		"debt ratio %.2f, savings %.0f, %s. ",
		fin.MonthlyIncomeNet, fin.MonthlyFixedExpenses, fin.ExistingCreditsTotal,
		pkg.EffectiveDebtRatio(), fin.AvailableSavings, label(historyLabels, fin.BankingHistory))

	credit := pkg.CreditRequest
	fmt.Fprintf(&b, "Requesting a %s credit of %.0f over %d months for %s. ",
		strings.ToLower(strings.ReplaceAll(string(credit.CreditType), "_", " ")),
		credit.AmountRequested, credit.DurationMonths, label(purposeLabels, credit.Purpose))

	behav := pkg.BehavioralIndicators
	fmt.Fprintf(&b, "Behavior: stress %d/5, urgency %d/5, project clarity %d/5, "+
		"engagement %d/5, %s discourse coherence. ",
		behav.StressLevel, behav.UrgencyLevel, behav.ProjectClarity,
		behav.EngagementLevel, strings.ToLower(string(behav.DiscourseCoherence)))

	intent := pkg.RealIntention
	fmt.Fprintf(&b, "Motivation: %s, projection capacity %s. ",
		strings.ToLower(strings.ReplaceAll(string(intent.MainMotivation), "_", " ")),
		strings.ToLower(strings.ReplaceAll(string(intent.ProjectionCapacity), "_", " ")))

	if flags := riskFlags(pkg.RiskChecklist); len(flags) > 0 {
		fmt.Fprintf(&b, "Risk flags: %s. ", strings.Join(flags, ", "))
	} else {
		b.WriteString("No risk flags raised. ")
	}

	syn := pkg.Synthesis
	fmt.Fprintf(&b, "Advisor synthesis: %s global risk, %s repayment capacity.",
		strings.ToLower(string(syn.GlobalRiskProfile)),
		strings.ToLower(string(syn.TheoreticalRepaymentCapacity)))

	return b.String()
}

func riskFlags(c domain.RiskChecklist) []string {
	var flags []string
	if c.ProfessionalInstability {
		flags = append(flags, "professional instability")
	}
	if c.HighDebt {
		flags = append(flags, "high debt")
	}
	if c.SpouseIncomeDependency {
		flags = append(flags, "spouse income dependency")
	}
	if c.NonPriorityProject {
		flags = append(flags, "non-priority project")
	}
	if c.ExcessiveUrgency {
		flags = append(flags, "excessive urgency")
	}
	if c.IncoherentDiscourse {
		flags = append(flags, "incoherent discourse")
	}
	return flags
}
