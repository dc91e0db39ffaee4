// Package encoding maps label and feature strings to dense integer codes.
package encoding

// Alphabet maps between strings and integer codes.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
	// Frozen alphabets return -1 from Code for unseen strings instead of
	// growing.
	Frozen bool `json:"frozen"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its code.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the code for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Code returns the code for s, adding it unless the alphabet is frozen.
func (a *Alphabet) Code(s string) int {
	if a.Frozen {
		return a.Get(s)
	}
	return a.Add(s)
}

// Codes encodes a list of strings.
func (a *Alphabet) Codes(ss []string) []int {
	codes := make([]int, len(ss))
	for i, s := range ss {
		codes[i] = a.Code(s)
	}
	return codes
}

// String returns the string for code, or "" if out of range.
func (a *Alphabet) String(code int) string {
	if code < 0 || code >= len(a.ToStr) {
		return ""
	}
	return a.ToStr[code]
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}
