// Package reconcile keeps a client's view of a deck consistent with the
// server while the user edits optimistically.
//
// History is the undo/redo stack. Local edits and server broadcasts are both
// pushed into it; pushing a state equal to the present is a no-op, so a
// broadcast that merely echoes a local edit does not add an undo step.
//
// Elements created locally carry a provisional id (NewProvisionalID) until
// the server assigns a permanent one and echoes the provisional id back in
// tempId. Ref and Locate let a client keep hold of such an element, for
// example its current selection, across that rename.
package reconcile
