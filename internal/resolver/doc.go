// Package resolver turns inbound query parameters into a concrete upstream
// URL and bearer token.
//
// Recognized parameters, first match wins:
//
//   - u: explicit upstream base URL, with t as an optional bearer token
//   - n: registry connection name, with e=fct selecting the function worker URL
//
// Resolution is a pure function of its inputs and the registry.
package resolver
