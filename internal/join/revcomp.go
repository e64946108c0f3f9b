package join

// complement maps each nucleotide symbol to its complement. Upper and lower
// case are kept; IUPAC ambiguity codes are complemented, anything else
// (N, gaps) maps to itself.
var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	pairs := []string{"AT", "CG", "RY", "KM", "BV", "DH", "SS", "WW", "NN"}
	for _, p := range pairs {
		a, b := p[0], p[1]
		complement[a], complement[b] = b, a
		la, lb := a+'a'-'A', b+'a'-'A'
		complement[la], complement[lb] = lb, la
	}
}

// ReverseComplement returns the reverse complement of a nucleotide sequence.
func ReverseComplement(s string) string {
	n := len(s)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = complement[s[i]]
	}
	return string(out)
}
