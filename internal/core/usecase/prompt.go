package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
)

const answerSystemPrompt = `You are a loan portfolio analyst assistant.
Answer the user question only from the context below.
Cite supporting records by their position using the marker [n], for example [1] or [2][3].
State counts and amounts exactly as they appear in the statistics.
If the context is insufficient to answer, say so directly instead of guessing.`

const analyticalSystemPrompt = `You are a loan portfolio analyst assistant.
The user asks an analytical question. Reason over the statistics and records below only.
Cite supporting records by their position using the marker [n].
Point out patterns or relationships you can support from the data and say plainly when the data is too thin to conclude.`

func buildAnswerPrompts(question string, ev domain.EvidenceContext, analytical bool) (string, string) {
	system := answerSystemPrompt
	if analytical {
		system = analyticalSystemPrompt
	}

	var records strings.Builder
	if len(ev.Sample) == 0 {
		records.WriteString("(no records)\n")
	}
	for idx, rec := range ev.Sample {
		records.WriteString(formatRecordLine(idx+1, rec))
		records.WriteByte('\n')
	}

	user := fmt.Sprintf(`Question:
%s

Statistics:
%s
Records:
%s`, strings.TrimSpace(question), ev.Digest, records.String())
	return system, user
}

func formatRecordLine(position int, rec domain.LoanRecord) string {
	line := fmt.Sprintf(
		"[%d] %s customer=%s type=%s amount=%s term=%dm status=%s risk=%s (%.0f)",
		position,
		rec.ApplicationID,
		rec.CustomerName,
		rec.LoanType,
		formatMoney(rec.Amount),
		rec.TermMonths,
		rec.Status,
		rec.EffectiveRiskLevel(),
		rec.RiskScore,
	)
	if purpose := strings.TrimSpace(rec.Purpose); purpose != "" {
		line += " purpose=" + truncateRunes(purpose, 120)
	}
	return line
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
