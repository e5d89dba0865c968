/*
Package scope resolves library scope strings into filesystem path prefixes.

A scope string is a comma or semicolon separated list of library ids, and may
carry the favorites sentinel "-1":

	""          every eligible library
	"5,7"       libraries 5 and 7, if they exist and are eligible
	"-1"        favorites only (every eligible library is still resolved)
	"-1,5"      favorites plus library 5

Ids that do not name an existing library are ignored. Eligibility is decided
by a Filter, for example TVShowMarkerLibraries for intro detection.

Each pipeline publishes its current Resolution in a Published slot so that
event handlers can check membership between full runs:

	res, err := resolver.Resolve(ctx, opts.IntroSkip.MarkerEnabledLibraryScope, scope.TVShowMarkerLibraries)
	if err != nil {
		return err
	}
	published.Store(res)

	if published.InScope(item.ContainingFolder) {
		// queue the item
	}
*/
package scope
