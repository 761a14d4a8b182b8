package swarm

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// TblParticles is the name of the sql database table that contains
	// positions and objective values for particles for each iteration.
	TblParticles = "cpsoparticles"
	// TblParticlesBest is the name of the sql database table that contains
	// each particle's personal best position at each iteration.
	TblParticlesBest = "cpsoparticlesbest"
	// TblBest is the name of the sql database table that contains
	// the best position for the entire swarm at each iteration.
	TblBest = "cpsobest"
)

func (it *Iterator) initdb() error {
	if it.Db == nil {
		return nil
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + TblParticles + " (run TEXT, particle INTEGER, iter INTEGER, cost REAL, infeas REAL" + it.xdbsql("define") + ");",
		"CREATE TABLE IF NOT EXISTS " + TblParticlesBest + " (run TEXT, particle INTEGER, iter INTEGER, cost REAL, infeas REAL" + it.xdbsql("define") + ");",
		"CREATE TABLE IF NOT EXISTS " + TblBest + " (run TEXT, iter INTEGER, cost REAL, infeas REAL" + it.xdbsql("define") + ");",
	}
	for _, s := range stmts {
		if _, err := it.Db.Exec(s); err != nil {
			return errors.Wrap(err, "creating swarm trace tables")
		}
	}
	return nil
}

func (it *Iterator) xdbsql(op string) string {
	s := ""
	for i := 0; i < it.Bounds.Len(); i++ {
		switch op {
		case "?":
			s += ",?"
		case "define":
			s += fmt.Sprintf(",x%v REAL", i)
		case "x":
			s += fmt.Sprintf(",x%v", i)
		default:
			panic("invalid db op " + op)
		}
	}
	return s
}

func pos2iface(pos []float64) []interface{} {
	iface := make([]interface{}, 0, len(pos))
	for _, v := range pos {
		iface = append(iface, v)
	}
	return iface
}

func (it *Iterator) updateDb() (err error) {
	if it.Db == nil {
		return nil
	}

	tx, err := it.Db.Begin()
	if err != nil {
		return errors.Wrap(err, "recording iteration")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			err = errors.Wrapf(err, "recording iteration %v", it.count)
			return
		}
		err = tx.Commit()
	}()

	run := it.RunId.String()
	s0 := "INSERT INTO " + TblParticles + " (run,particle,iter,cost,infeas" + it.xdbsql("x") + ") VALUES (?,?,?,?,?" + it.xdbsql("?") + ");"
	s1 := "INSERT INTO " + TblParticlesBest + " (run,particle,iter,cost,infeas" + it.xdbsql("x") + ") VALUES (?,?,?,?,?" + it.xdbsql("?") + ");"
	for _, p := range it.Pop {
		args := []interface{}{run, p.Id, it.count, p.Cost, p.Infeas}
		args = append(args, pos2iface(p.Pos())...)
		if _, err := tx.Exec(s0, args...); err != nil {
			return err
		}

		args = []interface{}{run, p.Id, it.count, p.Best.Cost, p.Best.Infeas}
		args = append(args, pos2iface(p.Best.Pos())...)
		if _, err := tx.Exec(s1, args...); err != nil {
			return err
		}
	}

	s2 := "INSERT INTO " + TblBest + " (run,iter,cost,infeas" + it.xdbsql("x") + ") VALUES (?,?,?,?" + it.xdbsql("?") + ");"
	glob := it.best
	args := []interface{}{run, it.count, glob.Cost, glob.Infeas}
	args = append(args, pos2iface(glob.Pos())...)
	_, err = tx.Exec(s2, args...)
	return err
}
