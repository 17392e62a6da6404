package vm

// ---------------------------------------------------------------------------
// Dict: association chains
// ---------------------------------------------------------------------------

// Equal is the key comparison used by dicts. Scalars compare by value within
// the same tag, so a Symbol never equals a String with the same text. Lists,
// arrays and dicts compare by identity. nil and Nothing are equal.
func Equal(a, b *Object) bool {
	if a == b {
		return true
	}
	if a.IsNothing() || b.IsNothing() {
		return a.IsNothing() && b.IsNothing()
	}
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeNumber:
		return a.Number == b.Number
	case TypeBoolean:
		return a.Boolean == b.Boolean
	case TypeSymbol, TypeString:
		return a.Text == b.Text
	}
	return false
}

func dictEmpty(d *Object) bool {
	return d.Key == nil && d.Value == nil && d.Next == nil
}

// DictGet returns the value of the first association whose key is Equal to
// key.
func DictGet(dict, key *Object) (*Object, bool) {
	if dict.Type != TypeDict || dictEmpty(dict) {
		return nil, false
	}
	for cell := dict; cell != nil; cell = cell.Next {
		if Equal(cell.Key, key) {
			return cell.Value, true
		}
	}
	return nil, false
}

// DictPut binds key to value in place. An existing association is updated;
// otherwise a new cell is added at the end of the chain.
func (c *Collector) DictPut(dict, key, value *Object) {
	if dict.Type != TypeDict {
		fatal(ErrTypeMismatch, "put into %s", dict.Type)
	}
	if dictEmpty(dict) {
		dict.Key, dict.Value = key, value
		return
	}
	tail := dict
	for cell := dict; cell != nil; cell = cell.Next {
		if Equal(cell.Key, key) {
			cell.Value = value
			return
		}
		tail = cell
	}
	cell := c.NewDict()
	cell.Key, cell.Value = key, value
	tail.Next = cell
}

// DictLen returns the number of associations.
func DictLen(dict *Object) int {
	if dictEmpty(dict) {
		return 0
	}
	n := 0
	for cell := dict; cell != nil; cell = cell.Next {
		n++
	}
	return n
}
