package labelgraph

// QualifyLabel builds the fully-qualified name of a label found under
// prefix. An empty prefix or ProtoSentinel leaves the bare name unchanged.
func QualifyLabel(prefix, bare string, d Dialect) string {
	if prefix == "" || prefix == ProtoSentinel {
		return bare
	}
	return prefix + d.Separator() + bare
}

// qualifyTokens splits tokens into qualified definitions and usages.
// Include tokens are ignored.
func qualifyTokens(tokens []Token, d Dialect) (defs []string, uses []LabelRef) {
	for _, t := range tokens {
		switch t.Kind {
		case Definition:
			defs = append(defs, QualifyLabel(t.Prefix, t.Text, d))
		case Usage:
			uses = append(uses, LabelRef{Qualified: QualifyLabel(t.Prefix, t.Text, d), Bare: t.Text})
		}
	}
	return defs, uses
}
