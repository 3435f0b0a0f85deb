/*
Package markov generates Japanese lyric lines of an exact phonetic length.

Text is split into tokens carrying a mora reading and a syllable
pronunciation, a first-order Markov chain is built over the tokens, and a
Generator walks the chain with O(1) alias-table draws until the drawn tokens
add up to the requested number of morae or syllables.

Models are immutable once built and can be shared between goroutines. They can
be written to and read from a JSON snapshot, or kept in a SQLite database
through a Store.

For a complete usage example, see the README.md file.
*/
package markov
