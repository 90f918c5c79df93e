package collab

import (
	"context"
	"fmt"
)

// AptManager drives the Debian-family package manager of the base image,
// chrooted into the stage rootfs.
type AptManager struct{}

func NewAptManager() *AptManager {
	return &AptManager{}
}

func (a *AptManager) RefreshIndex(ctx context.Context, rootfs string) error {
	if _, err := runCommand(ctx, "chroot", rootfs, "apt-get", "update"); err != nil {
		return fmt.Errorf("refresh package index: %w", err)
	}
	return nil
}

func (a *AptManager) Install(ctx context.Context, rootfs string, packages []string) error {
	args := append([]string{rootfs, "apt-get", "install", "--yes", "--no-install-recommends"}, packages...)
	out, err := runCommand(ctx, "chroot", args...)
	if err = classify(err, out, []string{
		"Unable to locate package",
		"has no installation candidate",
	}, ErrUnsatisfiable); err != nil {
		return fmt.Errorf("install system packages: %w", err)
	}
	return nil
}

func (a *AptManager) CleanCaches(ctx context.Context, rootfs string) error {
	if _, err := runCommand(ctx, "chroot", rootfs, "apt-get", "clean"); err != nil {
		return fmt.Errorf("clean package caches: %w", err)
	}
	if _, err := runCommand(ctx, "chroot", rootfs, "rm", "-rf", "/var/lib/apt/lists"); err != nil {
		return fmt.Errorf("clean package index: %w", err)
	}
	return nil
}
