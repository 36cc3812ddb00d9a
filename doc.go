/*
Package rbld implements an authoritative-style DNS front-end for DNS-based
block-list (DNSBL/RBL) queries. It answers three kinds of question on a
single UDP/TCP port.

Single-RBL queries

Standard reverse-octet lookups under a configured upstream RBL zone, e.g.
2.0.0.127.zen.spamhaus.org. The server performs the upstream lookup on
behalf of the client, caches the result, and answers.

Aggregate queries

A synthetic zone under which one query fans out concurrently to many RBLs,
within a hard deadline, and returns a single aggregated answer.

Custom-RBL queries

A locally administered block-list matched by CIDR containment against an
authoritative table, rather than by upstream DNS.

Everything outside of the resolver-and-cache engine - HTTP/JSON front-ends,
rate limiting, admin APIs - lives outside this module and interacts with it
only through the cache and the custom-RBL store.
*/
package rbld
