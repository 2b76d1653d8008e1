// Package main (cmd/admin) manages the Shamir-split preshared key of gatekeeperd.
//
// Commands:
//
//	status                  - Query whether the preshared key is unlocked
//	generate-admin          - Generate an admin ECDSA key pair
//	generate-admins-config  - Build the --admin-keys-file from admin public keys
//	split-preshared-key     - Split a preshared key into share files
//	submit-share            - Submit one share, signed with the admin's key
//
// Example workflow:
//
//  1. Each admin runs: admin generate-admin --admin-privkey-file=a1.pem --admin-pubkey-file=a1.pub
//  2. admin generate-admins-config --admin-pubkey-files=a1.pub,a2.pub,a3.pub
//  3. admin split-preshared-key --threshold=2 --total-shares=3
//  4. gatekeeperd --preshared-threshold=2 --admin-keys-file=admins.json
//  5. Two admins run: admin submit-share --share-file=share-N.json
package main
