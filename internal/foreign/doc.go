// Package foreign defines references to objects that physically live inside
// the embedded interpreter, together with the ownership tag that decides who
// must release them.
//
// An Owned handle holds one interpreter reference and gives it back exactly
// once through its RefCounter. A Borrowed handle has no Release method at all,
// so code holding one cannot release it by mistake.
package foreign
