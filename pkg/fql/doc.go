// Package fql renders the query strings sent to the service.
//
// Queries are built from a collection handle:
//
//	fql.From("Post").Where(fql.Eq("author", ref)).FQL()
//	// Post.where((doc) => doc.author == User.byId('7'))
//
// Document payloads are rendered against a collection definition so that
// reference, Time and Date fields are sent as FQL values rather than
// strings.
package fql
