// Package browser owns the single persistent browser session Clippy drives
// against the Farcaster web client.
//
// # Architecture
//
// The package is built around three concepts:
//
//  1. Launcher: starts a browser on a persistent profile directory
//     (PlaywrightLauncher in production, browsertest.Launcher in tests)
//  2. Manager: owns at most one live Instance per profile directory and moves
//     it through the session lifecycle
//  3. Session: a handle to the live Page handed to workflows
//
// # Session Lifecycle
//
//	Absent --launch--> Launching --probe ok--> Live
//	Launching --profile lock conflict--> purge artifacts, retry once --> Live | Absent
//	Live --probe fails--> Stale --close--> Absent --launch--> Launching
//	Live --login wall--> Authenticating --login--> Live
//	Authenticating --manual wait bound exceeded--> Absent (ErrAuthenticationTimedOut)
//
// Every fresh launch purges stale Chromium lock files, passes HardenedArgs,
// and restores the cookie jar from the profile store. After a successful
// login the jar is replaced with the browser's current cookies.
//
// # Authentication
//
// When the landing page redirects to the login route the manager runs the
// passwordless email flow (if Config.LoginEmail is set) and then waits, for up
// to Config.ManualLoginTimeout, for the page to leave the login route. The
// wait covers both the emailed confirmation link and a human completing
// login in a visible browser window.
//
// # Concurrency
//
// Manager methods are safe for concurrent use, but a Session's Page is not:
// callers serialize browser work through the action lock (package lock).
//
// # Example Usage
//
//	launcher := browser.NewPlaywrightLauncher()
//	defer launcher.Shutdown()
//
//	store := profile.NewStore("./browser-profile", logger)
//	manager := browser.NewManager(browser.DefaultConfig(), launcher, store, logger)
//	defer manager.Close()
//
//	session, err := manager.Session(ctx, false)
//	if err != nil {
//	    return err
//	}
//	err = session.Navigate("https://farcaster.xyz/dwr")
package browser
