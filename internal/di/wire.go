//go:build wireinject
// +build wireinject

package di

// This file documents the dependency graph Google Wire would generate from;
// it is never compiled (the wireinject tag excludes it from normal builds)
// and app.go's NewApp/NewAppWithEvmClient are the hand-written equivalent of
// what `wire` would emit into a wire_gen.go here. Wire's static injector
// model does not accommodate the evmClient-present/absent branch cleanly —
// that branch is exactly where newApp's imperative control flow earns its
// keep over a generated wire.Build call — so app.go is kept as the single
// source of truth instead of maintaining two copies that could drift.
