package semantic

// StructureTree is the root of the logical structure.
type StructureTree struct {
	K       []*StructureElement
	RoleMap RoleMap
}

// StructureElement represents a node in the structure tree.
type StructureElement struct {
	S          string            // Structure type (e.g., P, H1)
	P          *StructureElement // Parent
	Pg         *Page             // Page containing the content
	K          []StructureItem   // Children
	Title      string
	Lang       string
	Alt        string
	ActualText string
}

// StructureItem represents a child of a structure element: either another
// element or a marked-content sequence identified by page and MCID.
type StructureItem struct {
	Element *StructureElement
	MCID    int
	Pg      *Page
}

// IsMCID reports whether the item refers to marked content.
func (it StructureItem) IsMCID() bool { return it.Element == nil }

// RoleMap maps structure types to standard types.
type RoleMap map[string]string

// AddChild appends child to e and sets its parent.
func (e *StructureElement) AddChild(child *StructureElement) {
	child.P = e
	e.K = append(e.K, StructureItem{Element: child})
}

// InsertChild places child at index i of e's kids, clamped to the valid
// range, and sets its parent.
func (e *StructureElement) InsertChild(i int, child *StructureElement) {
	child.P = e
	if i < 0 {
		i = 0
	}
	if i > len(e.K) {
		i = len(e.K)
	}
	e.K = append(e.K, StructureItem{})
	copy(e.K[i+1:], e.K[i:])
	e.K[i] = StructureItem{Element: child}
}

// AddMCID appends a marked-content reference on page pg.
func (e *StructureElement) AddMCID(pg *Page, mcid int) {
	e.K = append(e.K, StructureItem{MCID: mcid, Pg: pg})
}

// Walk visits e and its descendants depth-first.
func (e *StructureElement) Walk(fn func(*StructureElement)) {
	fn(e)
	for _, k := range e.K {
		if k.Element != nil {
			k.Element.Walk(fn)
		}
	}
}

// Walk visits every element of the tree depth-first.
func (t *StructureTree) Walk(fn func(*StructureElement)) {
	if t == nil {
		return
	}
	for _, e := range t.K {
		e.Walk(fn)
	}
}
