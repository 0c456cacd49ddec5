// Package jwt manages session-token issuance and verification using configured
// signing keys and strict validation semantics suitable for low-latency
// authentication paths.
//
// # Claims layout
//
// One token type serves both identity variants. The "typ" claim discriminates
// staff from candidate tokens; candidate tokens carry the candidate ("cid")
// and selection-process ("vk") identifiers. A switched token is a candidate
// token whose "swf" claim holds the originating staff identity, so the switch
// state is encoded in the token itself: "swf" present means switched, absent
// means direct.
package jwt
