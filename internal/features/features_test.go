package features

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func samplePackage() *domain.ApplicationPackage {
	return &domain.ApplicationPackage{
		ClientIdentity: domain.ClientIdentity{
			Age:                   34,
			ClientStatus:          domain.ClientRegular,
			BankingSeniorityYears: 6,
			InteractionFrequency:  domain.FrequencyMedium,
		},
		PersonalSituation: domain.PersonalSituation{
			MaritalStatus:   domain.MaritalMarried,
			DependentsCount: 2,
			SpouseExists:    true,
			SpouseInfo: &domain.SpouseInfo{
				ProfessionalStatus: domain.StatusEmployeeCDI,
				MonthlyIncome:      1800,
			},
		},
		ProfessionalSituation: domain.ProfessionalSituation{
			ProfessionalStatus: domain.StatusEmployeeCDI,
			SeniorityYears:     5,
			Stability:          domain.LevelHigh,
		},
		FinancialSituation: domain.FinancialSituation{
			MonthlyIncomeNet:              2500,
			MonthlyFixedExpenses:          900,
			ExistingCreditsTotal:          4000,
			ExistingCreditsMonthlyPayment: 250,
			AvailableSavings:              3000,
			BankingHistory:                domain.HistoryNoIncident,
		},
		CreditRequest: domain.CreditRequest{
			CreditType:      domain.CreditPersonal,
			AmountRequested: 12000,
			DurationMonths:  48,
			Purpose:         domain.PurposeNecessaryExpense,
		},
		BehavioralIndicators: domain.BehavioralIndicators{
			StressLevel:        2,
			UrgencyLevel:       2,
			ProjectClarity:     4,
			EngagementLevel:    4,
			DiscourseCoherence: domain.LevelHigh,
		},
		RealIntention: domain.RealIntention{
			MainMotivation:     domain.MotivationNecessity,
			ProjectionCapacity: domain.ProjectionLongTerm,
		},
		Synthesis: domain.Synthesis{
			GlobalRiskProfile:            domain.LevelLow,
			TheoreticalRepaymentCapacity: domain.RepaymentSolid,
		},
	}
}

func TestExtractBaseline(t *testing.T) {
	f := Extract(samplePackage())

	want := map[string]float64{
		Age:                   34,
		ClientStatusIsNew:     0,
		IsEmployedCDI:         1,
		IsUnemployed:          0,
		JobStabilityLow:       0,
		HasSpouse:             1,
		SpouseIncome:          1800,
		MonthlyIncome:         2500,
		DebtRatio:             0.1,
		HasBankingIncidents:   0,
		MajorBankingIncidents: 0,
		AmountRequested:       12000,
		TotalRiskFlags:        0,
		ExternalPressure:      0,
		RepaymentInsufficient: 0,
	}
	for name, v := range want {
		if got := f[name]; math.Abs(got-v) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, got, v)
		}
	}

	if got, want := f[ExpenseRatio], 900.0/2500.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("expense_ratio = %v, want %v", got, want)
	}
	if got, want := f[CreditToIncomeRatio], 12000.0/(2500.0*12); math.Abs(got-want) > 1e-9 {
		t.Errorf("credit_to_income_ratio = %v, want %v", got, want)
	}
}

func TestExtractRiskFlags(t *testing.T) {
	pkg := samplePackage()
	pkg.ProfessionalSituation.ProfessionalStatus = domain.StatusUnemployed
	pkg.ProfessionalSituation.Stability = domain.LevelLow
	pkg.FinancialSituation.BankingHistory = domain.HistoryMajorIncidents
	pkg.RiskChecklist = domain.RiskChecklist{
		ProfessionalInstability: true,
		HighDebt:                true,
		ExcessiveUrgency:        true,
		IncoherentDiscourse:     true,
	}
	pkg.RealIntention.MainMotivation = domain.MotivationExternalPressure
	pkg.Synthesis.GlobalRiskProfile = domain.LevelHigh

	f := Extract(pkg)

	checks := map[string]float64{
		IsUnemployed:          1,
		IsEmployedCDI:         0,
		JobStabilityLow:       1,
		HasBankingIncidents:   1,
		MajorBankingIncidents: 1,
		TotalRiskFlags:        4,
		ExternalPressure:      1,
		GlobalRiskHigh:        1,
	}
	for name, want := range checks {
		if got := f[name]; got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestExtractZeroIncome(t *testing.T) {
	pkg := samplePackage()
	pkg.FinancialSituation.MonthlyIncomeNet = 0
	pkg.FinancialSituation.ExistingCreditsMonthlyPayment = 0

	f := Extract(pkg)
	if f[ExpenseRatio] != 1.0 {
		t.Errorf("expense_ratio = %v, want 1.0 for zero income", f[ExpenseRatio])
	}
	if f[CreditToIncomeRatio] != 10.0 {
		t.Errorf("credit_to_income_ratio = %v, want 10.0 for zero income", f[CreditToIncomeRatio])
	}
}

func TestExtractDeterministic(t *testing.T) {
	a := Extract(samplePackage())
	b := Extract(samplePackage())
	if len(a) != len(b) {
		t.Fatalf("feature count differs: %d vs %d", len(a), len(b))
	}
	for name, v := range a {
		if b[name] != v {
			t.Errorf("%s differs across runs: %v vs %v", name, v, b[name])
		}
	}
}
