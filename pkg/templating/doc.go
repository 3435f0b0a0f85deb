/*
Package templating renders song forms: plain-text templates whose functions
generate lyric lines of an exact length from the models kept in a markov.Store.

A form such as a haiku is written as

	{{define "haiku.tmpl.txt"}}{{line . 5}}
	{{line . 7}}
	{{line . 5}}
	{{end}}

and rendered with FormData naming the model and the metric. Forms are loaded
from the filesystem and can be reloaded without restarting the application.
*/
package templating
