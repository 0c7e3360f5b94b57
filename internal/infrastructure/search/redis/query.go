package redis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

// minFuzzyTermLen keeps short tokens exact; a one-edit distance on a
// three-letter word matches too much.
const minFuzzyTermLen = 4

const (
	highlightOpen  = "<b>"
	highlightClose = "</b>"
)

// highlightFields are the TEXT fields whose matched fragments are returned.
var highlightFields = []string{domain.FieldCustomerName, domain.FieldPurpose}

var highlightStripper = strings.NewReplacer(highlightOpen, "", highlightClose, "")

var tagFields = map[string]bool{
	domain.FieldStatus:        true,
	domain.FieldLoanType:      true,
	domain.FieldCustomerID:    true,
	domain.FieldApplicationID: true,
}

// buildQueryString renders the filter and text parts of a search query in
// RediSearch syntax. Filters are ANDed. When filters are present the text
// part is optional: it ranks the filtered set but never narrows it.
func buildQueryString(q ports.SearchQuery) string {
	filters := strings.Join(filterParts(q), " ")
	text := textClause(q)
	switch {
	case filters == "" && text == "":
		return "*"
	case text == "":
		return filters
	case filters == "":
		return text
	}
	return filters + " ~(" + text + ")"
}

func filterParts(q ports.SearchQuery) []string {
	parts := make([]string, 0, len(q.Terms)+len(q.Ranges)+1)
	for _, term := range q.Terms {
		parts = append(parts, tagFilter(term.Field, term.Value))
	}
	for _, r := range q.Ranges {
		parts = append(parts, numericFilter(r))
	}
	if words := strings.Fields(q.CustomerName); len(words) > 0 {
		prefixed := make([]string, 0, len(words))
		for _, w := range words {
			prefixed = append(prefixed, escapeQuery(strings.ToLower(w))+"*")
		}
		parts = append(parts, fmt.Sprintf("@%s:(%s)", domain.FieldCustomerName, strings.Join(prefixed, " ")))
	}
	return parts
}

func textClause(q ports.SearchQuery) string {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 || len(q.Fields) == 0 {
		return ""
	}

	clauses := make([]string, 0, len(q.Fields))
	for _, field := range q.Fields {
		var clause string
		if tagFields[field.Name] {
			escaped := make([]string, 0, len(terms))
			for _, t := range terms {
				escaped = append(escaped, tagEscaper.Replace(t))
			}
			clause = fmt.Sprintf("@%s:{%s}", field.Name, strings.Join(escaped, "|"))
		} else {
			words := make([]string, 0, len(terms))
			for _, t := range terms {
				words = append(words, textTerm(t, q.Fuzzy))
			}
			clause = fmt.Sprintf("@%s:(%s)", field.Name, strings.Join(words, "|"))
		}
		if field.Boost > 0 && field.Boost != 1 {
			clause = fmt.Sprintf("(%s)=>{$weight: %s}", clause, strconv.FormatFloat(field.Boost, 'f', -1, 64))
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " | ") + ")"
}

func textTerm(term string, fuzzy bool) string {
	escaped := escapeQuery(term)
	if fuzzy && len([]rune(term)) >= minFuzzyTermLen {
		return "%" + escaped + "%"
	}
	return escaped
}

func tagFilter(field, value string) string {
	return fmt.Sprintf("@%s:{%s}", field, tagEscaper.Replace(value))
}

func numericFilter(r ports.RangeFilter) string {
	lo, hi := "-inf", "+inf"
	if r.Min != nil {
		lo = strconv.FormatFloat(*r.Min, 'f', -1, 64)
	}
	if r.Max != nil {
		hi = strconv.FormatFloat(*r.Max, 'f', -1, 64)
	}
	return fmt.Sprintf("@%s:[%s %s]", r.Field, lo, hi)
}

// lexicalArgs builds the FT.SEARCH arguments after the index name.
// Filter-only queries carry no relevance, so they are ordered newest first.
func lexicalArgs(q ports.SearchQuery) []string {
	args := []string{buildQueryString(q), "WITHSCORES"}
	if textClause(q) == "" {
		args = append(args, "SORTBY", fieldCreatedAt, "DESC")
	}
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)
	if textClause(q) != "" {
		args = append(args, "HIGHLIGHT", "FIELDS", strconv.Itoa(len(highlightFields)))
		args = append(args, highlightFields...)
		args = append(args, "TAGS", highlightOpen, highlightClose)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(q.Limit), "DIALECT", "2")
	return args
}

// takeHighlights moves highlighted field values out of fields, restoring the
// plain value in place so the record decodes unchanged.
func takeHighlights(fields map[string]string) map[string]string {
	var out map[string]string
	for _, name := range highlightFields {
		value := fields[name]
		if !strings.Contains(value, highlightOpen) {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(highlightFields))
		}
		out[name] = value
		fields[name] = highlightStripper.Replace(value)
	}
	return out
}

func knnArgs(q ports.SearchQuery) []string {
	filter := "*"
	if parts := filterParts(q); len(parts) > 0 {
		filter = "(" + strings.Join(parts, " ") + ")"
	}
	query := fmt.Sprintf("%s=>[KNN %d @%s $BLOB AS %s]", filter, q.Limit, fieldEmbedding, fieldVectorScore)

	args := []string{query, "SORTBY", fieldVectorScore, "ASC"}
	fields := append(append([]string(nil), returnFields...), fieldVectorScore)
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	args = append(args, fields...)
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.Limit),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)
	return args
}

type searchEntry struct {
	key    string
	score  float64
	fields map[string]string
}

// parseSearchReply reads [total, key, (score,) fields, ...]. The stride is 3
// with WITHSCORES and 2 without.
func parseSearchReply(raw []rueidis.RedisMessage, withScores bool) (int, []searchEntry, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse search total: %w", err)
	}

	stride := 2
	if withScores {
		stride = 3
	}
	entries := make([]searchEntry, 0, (len(raw)-1)/stride)
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		entry := searchEntry{key: key}
		fieldsAt := i + 1
		if withScores {
			scoreStr, err := raw[i+1].ToString()
			if err != nil {
				continue
			}
			if entry.score, err = strconv.ParseFloat(scoreStr, 64); err != nil {
				continue
			}
			fieldsAt = i + 2
		}
		pairs, err := raw[fieldsAt].ToArray()
		if err != nil {
			continue
		}
		entry.fields = parseFieldPairs(pairs)
		entries = append(entries, entry)
	}
	return int(total), entries, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>",
	"{", "\\{", "}", "\\}", "\"", "\\\"", "'", "\\'",
	":", "\\:", ";", "\\;", "!", "\\!", "@", "\\@",
	"#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)",
	"-", "\\-", "+", "\\+", "=", "\\=", "~", "\\~",
	"|", "\\|", " ", "\\ ",
)

var queryEscaper = strings.NewReplacer(
	`\`, `\\`, `'`, `\'`, `"`, `\"`, `@`, `\@`,
	`{`, `\{`, `}`, `\}`, `(`, `\(`, `)`, `\)`,
	`|`, `\|`, `-`, `\-`, `~`, `\~`, `*`, `\*`,
	`[`, `\[`, `]`, `\]`, `!`, `\!`, `%`, `\%`,
	`^`, `\^`, `$`, `\$`, `<`, `\<`, `>`, `\>`,
	`=`, `\=`, `;`, `\;`, `+`, `\+`, `:`, `\:`,
	`.`, `\.`, `,`, `\,`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
