// Package index loads, queries and builds SqPack index files.
//
// An archive carries two indices over the same entries. The .index file
// keys entries on (path hash, name hash) pairs and additionally groups them
// by directory; the .index2 file keys them on the full-path hash. Hash
// tables are sorted for binary search. When two paths share a key, the hash
// table records a synonym and the conflict list, sorted by key and searched
// by path text, holds the real locators.
package index
