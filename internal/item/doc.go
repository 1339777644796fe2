// Package item defines the URL item entity: the lifecycle stage, link
// state, identifier candidates, intent flags, citation snapshot, and the
// append-only processing history. It carries no behavior beyond shape
// helpers; all mutation flows through the machine package.
package item
