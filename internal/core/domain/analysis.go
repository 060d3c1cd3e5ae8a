package domain

import "time"

type InputType string

const (
	InputTypeURL  InputType = "url"
	InputTypeText InputType = "text"
)

// AnalyzeInput é o pedido de análise enviado pelo usuário: um texto de vaga ou uma URL.
type AnalyzeInput struct {
	Input string    `json:"input" validate:"required,min=10,max=10000"`
	Type  InputType `json:"type" validate:"required,oneof=url text"`
}

// RedFlag é um risco identificado pelo provedor de análise.
type RedFlag struct {
	Severity string `json:"severity" validate:"required,oneof=High Medium Low"`
	Category string `json:"category" validate:"required,oneof=Culture Compensation Workload Management Stability"`
	Quote    string `json:"quote"`
	Reality  string `json:"reality"`
}

// Analysis é o relatório estruturado devolvido pelo provedor.
type Analysis struct {
	CompanyName  *string   `json:"company_name"`
	JobTitle     *string   `json:"job_title"`
	OverallScore int       `json:"overall_score" validate:"min=0,max=100"`
	Summary      string    `json:"summary"`
	RedFlags     []RedFlag `json:"red_flags" validate:"dive"`
	ShareCopy    string    `json:"share_copy,omitempty"`
}

// FallbackAnalysis é usada quando o provedor falha, para que o usuário ainda receba uma resposta.
func FallbackAnalysis() Analysis {
	return Analysis{
		OverallScore: 50,
		Summary:      "Unable to analyze this job description. Please try again or paste the text directly.",
		RedFlags:     []RedFlag{},
		ShareCopy:    "I tried to scan this JD but encountered an issue.",
	}
}

// Scan é o resultado de uma análise, persistido ou não.
type Scan struct {
	ID          string     `json:"id"`
	InputType   InputType  `json:"inputType"`
	SourceURL   *string    `json:"sourceUrl"`
	Content     string     `json:"content"`
	CompanyName *string    `json:"companyName"`
	JobTitle    *string    `json:"jobTitle"`
	RiskScore   int        `json:"riskScore"`
	Summary     string     `json:"summary"`
	ShareCopy   string     `json:"shareCopy"`
	Flags       []ScanFlag `json:"flags"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ScanFlag struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Quote    string `json:"quote"`
	Reality  string `json:"reality"`
}

// ScanResult acompanha o Scan com a indicação de persistência.
type ScanResult struct {
	Scan          Scan
	DatabaseSaved bool
}
