// Package password hashes principal passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can rehash after the next successful sign-in. [CheckPolicy] enforces
// the minimum password rule applied at registration and reset.
package password
