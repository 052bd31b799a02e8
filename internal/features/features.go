// Package features derives the structured feature set the classifier and
// fraud rules consume from a submitted application package.
package features

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Feature names shared by the classifier and the fraud rule variables.
const (
	Age                   = "age"
	BankingSeniorityYears = "banking_seniority_years"
	ClientStatusIsNew     = "client_status_is_new"
	InteractionRare       = "interaction_frequency_rare"

	DependentsCount = "dependents_count"
	HasSpouse       = "has_spouse"
	SpouseIncome    = "spouse_income"
	IsMarried       = "is_married"

	IsEmployedCDI     = "is_employed_cdi"
	IsUnemployed      = "is_unemployed"
	JobSeniorityYears = "job_seniority_years"
	JobStabilityHigh  = "job_stability_high"
	JobStabilityLow   = "job_stability_low"

	MonthlyIncome         = "monthly_income"
	MonthlyExpenses       = "monthly_expenses"
	ExistingDebt          = "existing_debt"
	DebtMonthlyPayment    = "debt_monthly_payment"
	DebtRatio             = "debt_ratio"
	AvailableSavings      = "available_savings"
	HasBankingIncidents   = "has_banking_incidents"
	MajorBankingIncidents = "major_banking_incidents"

	AmountRequested  = "amount_requested"
	DurationMonths   = "duration_months"
	IsRealEstate     = "is_real_estate"
	IsInvestment     = "is_investment"
	IsComfortExpense = "is_comfort_expense"

	StressLevel     = "stress_level"
	UrgencyLevel    = "urgency_level"
	ProjectClarity  = "project_clarity"
	EngagementLevel = "engagement_level"
	LowCoherence    = "low_coherence"

	ExternalPressure = "external_pressure"
	ShortTermOnly    = "short_term_only"

	RiskProfessionalInstability = "risk_professional_instability"
	RiskHighDebt                = "risk_high_debt"
	RiskSpouseDependency        = "risk_spouse_dependency"
	RiskNonPriority             = "risk_non_priority"
	RiskExcessiveUrgency        = "risk_excessive_urgency"
	RiskIncoherent              = "risk_incoherent"

	GlobalRiskHigh        = "global_risk_high"
	RepaymentInsufficient = "repayment_capacity_insufficient"

	ExpenseRatio        = "expense_ratio"
	CreditToIncomeRatio = "credit_to_income_ratio"
	TotalRiskFlags      = "total_risk_flags"
)

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Extract builds the feature map for one application. The mapping is fixed:
// the same package always yields the same features.
func Extract(pkg *domain.ApplicationPackage) map[string]float64 {
	client := pkg.ClientIdentity
	personal := pkg.PersonalSituation
	professional := pkg.ProfessionalSituation
	financial := pkg.FinancialSituation
	credit := pkg.CreditRequest
	behavioral := pkg.BehavioralIndicators
	intention := pkg.RealIntention
	risks := pkg.RiskChecklist
	synthesis := pkg.Synthesis

	f := map[string]float64{
		Age:                   float64(client.Age),
		BankingSeniorityYears: client.BankingSeniorityYears,
		ClientStatusIsNew:     boolFeature(client.ClientStatus == domain.ClientNew),
		InteractionRare:       boolFeature(client.InteractionFrequency == domain.FrequencyRare),

		DependentsCount: float64(personal.DependentsCount),
		HasSpouse:       boolFeature(personal.SpouseExists),
		IsMarried:       boolFeature(personal.MaritalStatus == domain.MaritalMarried),

		IsEmployedCDI:     boolFeature(professional.ProfessionalStatus == domain.StatusEmployeeCDI),
		IsUnemployed:      boolFeature(professional.ProfessionalStatus == domain.StatusUnemployed),
		JobSeniorityYears: professional.SeniorityYears,
		JobStabilityHigh:  boolFeature(professional.Stability == domain.LevelHigh),
		JobStabilityLow:   boolFeature(professional.Stability == domain.LevelLow),

		MonthlyIncome:         financial.MonthlyIncomeNet,
		MonthlyExpenses:       financial.MonthlyFixedExpenses,
		ExistingDebt:          financial.ExistingCreditsTotal,
		DebtMonthlyPayment:    financial.ExistingCreditsMonthlyPayment,
		DebtRatio:             pkg.EffectiveDebtRatio(),
		AvailableSavings:      financial.AvailableSavings,
		HasBankingIncidents:   boolFeature(financial.BankingHistory != domain.HistoryNoIncident),
		MajorBankingIncidents: boolFeature(financial.BankingHistory == domain.HistoryMajorIncidents),

		AmountRequested:  credit.AmountRequested,
		DurationMonths:   float64(credit.DurationMonths),
		IsRealEstate:     boolFeature(credit.CreditType == domain.CreditRealEstate),
		IsInvestment:     boolFeature(credit.Purpose == domain.PurposeInvestment),
		IsComfortExpense: boolFeature(credit.Purpose == domain.PurposeComfortExpense),

		StressLevel:     float64(behavioral.StressLevel),
		UrgencyLevel:    float64(behavioral.UrgencyLevel),
		ProjectClarity:  float64(behavioral.ProjectClarity),
		EngagementLevel: float64(behavioral.EngagementLevel),
		LowCoherence:    boolFeature(behavioral.DiscourseCoherence == domain.LevelLow),

		ExternalPressure: boolFeature(intention.MainMotivation == domain.MotivationExternalPressure),
		ShortTermOnly:    boolFeature(intention.ProjectionCapacity == domain.ProjectionShortTermOnly),

		RiskProfessionalInstability: boolFeature(risks.ProfessionalInstability),
		RiskHighDebt:                boolFeature(risks.HighDebt),
		RiskSpouseDependency:        boolFeature(risks.SpouseIncomeDependency),
		RiskNonPriority:             boolFeature(risks.NonPriorityProject),
		RiskExcessiveUrgency:        boolFeature(risks.ExcessiveUrgency),
		RiskIncoherent:              boolFeature(risks.IncoherentDiscourse),

		GlobalRiskHigh:        boolFeature(synthesis.GlobalRiskProfile == domain.LevelHigh),
		RepaymentInsufficient: boolFeature(synthesis.TheoreticalRepaymentCapacity == domain.RepaymentInsufficient),
	}

	if personal.SpouseExists && personal.SpouseInfo != nil {
		f[SpouseIncome] = personal.SpouseInfo.MonthlyIncome
	} else {
		f[SpouseIncome] = 0
	}

	// Derived ratios. A zero income caps both at their worst-case values.
	if financial.MonthlyIncomeNet > 0 {
		f[ExpenseRatio] = financial.MonthlyFixedExpenses / financial.MonthlyIncomeNet
		f[CreditToIncomeRatio] = credit.AmountRequested / (financial.MonthlyIncomeNet * 12)
	} else {
		f[ExpenseRatio] = 1.0
		f[CreditToIncomeRatio] = 10.0
	}

	f[TotalRiskFlags] = f[RiskProfessionalInstability] + f[RiskHighDebt] +
		f[RiskSpouseDependency] + f[RiskNonPriority] +
		f[RiskExcessiveUrgency] + f[RiskIncoherent]

	return f
}
