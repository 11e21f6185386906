package postgresql

// Migrations exposes migrations to the external test package.
var Migrations = migrations
