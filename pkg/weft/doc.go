/*
Package weft provides a lightweight template compiler and renderer.

Templates mix literal text with comments ({# ... #}), control directives
({% ... %}) and value substitutions ({{ ... }}). A Renderer compiles its
template once at construction into an immutable program, which can then be
rendered any number of times against caller-supplied context maps. Dotted
names resolve across maps, struct fields and zero-argument methods, and
values can be piped through registered filters with the | syntax.

Conditions and for-loop iterables keep the full expression syntax of the
expr language, so templates may compare, index and combine context values
freely. Rendering is synchronous and allocation-local; a compiled Renderer
is safe for concurrent use as long as its filter registry is not mutated
while renders are in flight.

For the full directive grammar and filter list, see the README.md file.
*/
package weft
