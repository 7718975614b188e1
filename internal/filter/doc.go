// Package filter implements the restricted eligibility-expression
// language used for extra matching conditions.
//
// An expression is parsed once into a small AST of comparisons and
// boolean connectives over named fields, then evaluated against a
// case/control record pair. This deliberately avoids a general-purpose
// scripting evaluator: the grammar is exactly comparisons, AND/OR/NOT,
// and parentheses - nothing callable, nothing assignable.
//
// Field references name their subject explicitly:
//
//	control.age >= 30 AND control.region == case.region
//
// Supported literals: single- or double-quoted strings, integers,
// floats, true/false, and null. Operators: == != < <= > >=.
// Keywords are case-insensitive; field names are not.
//
// Null semantics: == and != treat null as a regular value (null == null
// is true); ordering comparisons involving null evaluate to false.
package filter
